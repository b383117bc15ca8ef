// Package diff provides function to compare contents from reader and
// returns error information if they are different.
//
// The package will ignore white spaces at the end of line and end of file
package diff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"unicode"
)

// maxLine is the longest line accepted from either side
const maxLine = 64 << 20

// Error describes the first difference
type Error struct {
	Line     int
	Expected string
	Actual   string
	Extra    string // "actual" or "expected" when one side has more content
}

func (e *Error) Error() string {
	if e.Extra != "" {
		return fmt.Sprintf("%v have more content at line %d: %v", e.Extra, e.Line, clip(e.Actual))
	}
	return fmt.Sprintf("At line %d,\nexpected: %v\nactual: %v", e.Line, clip(e.Expected), clip(e.Actual))
}

// Compare compares actual with expected.
// if they are the same except space at line / file ending,
// no error is returned.
// A difference is reported as *Error, any other error comes from reading.
func Compare(expected, actual io.Reader) error {
	expScan := newScanner(expected)
	actScan := newScanner(actual)

	for line := 1; ; line++ {
		exp, hasExp := scanTrimRight(expScan)
		act, hasAct := scanTrimRight(actScan)
		if err := scanErr(expScan, actScan); err != nil {
			return err
		}

		// EOF at the same time
		if !hasExp && !hasAct {
			return nil
		}
		// they are not equal
		if exp != act {
			return &Error{Line: line, Expected: exp, Actual: act}
		}
		// they are all exists and equal
		if hasExp && hasAct {
			continue
		}
		// verify all empty line lefts
		if err := verifyEOFSpace("actual", line, actScan); err != nil {
			return err
		}
		if err := verifyEOFSpace("expected", line, expScan); err != nil {
			return err
		}
		// at this point, they should all be same
		return scanErr(expScan, actScan)
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLine)
	return sc
}

func scanErr(scs ...*bufio.Scanner) error {
	for _, sc := range scs {
		if err := sc.Err(); err != nil {
			return err
		}
	}
	return nil
}

func scanTrimRight(sc *bufio.Scanner) (string, bool) {
	if sc.Scan() {
		return trimRight(sc), true
	}
	return "", false
}

func verifyEOFSpace(name string, line int, sc *bufio.Scanner) error {
	for sc.Scan() {
		line++
		if v := trimRight(sc); v != "" {
			return &Error{Line: line, Actual: v, Extra: name}
		}
	}
	return nil
}

func trimRight(sc *bufio.Scanner) string {
	return string(bytes.TrimRightFunc(sc.Bytes(), unicode.IsSpace))
}

func clip(s string) string {
	const n = 128
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
