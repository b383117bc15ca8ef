// Package language defines the fixed set of supported programming languages
// and how each one is compiled and run.
package language

import (
	"errors"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Language identifies a supported programming language
type Language string

// Supported languages
const (
	C       Language = "c"
	CPP     Language = "cpp"
	Rust    Language = "rust"
	Go      Language = "go"
	Python3 Language = "python3"
	Java    Language = "java"
)

// ErrUnknownLanguage is returned for a language outside the supported set
var ErrUnknownLanguage = errors.New("unknown language")

var supported = mapset.NewSet(C, CPP, Rust, Go, Python3, Java)

// Parse validates a submission's declared language. There is no fallback.
func Parse(s string) (Language, error) {
	l := Language(s)
	if !supported.Contains(l) {
		return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
	}
	return l, nil
}

// Supported returns all supported languages in sorted order
func Supported() []Language {
	l := supported.ToSlice()
	slices.Sort(l)
	return l
}
