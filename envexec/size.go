package envexec

import (
	"fmt"
	"strconv"
	"strings"
)

// Size represent data size in bytes
type Size uint64

// ParseSize parses "64k", "256m", "1g" or a plain byte count
func ParseSize(s string) (Size, error) {
	var sz Size
	if err := sz.Set(s); err != nil {
		return 0, err
	}
	return sz, nil
}

// Set parses size for flag and configuration values
func (s *Size) Set(str string) error {
	str = strings.TrimSpace(strings.ToLower(str))
	str = strings.TrimSuffix(str, "ib")
	str = strings.TrimSuffix(str, "b")
	if str == "" {
		return fmt.Errorf("empty size")
	}
	var shift uint
	switch str[len(str)-1] {
	case 'k':
		shift = 10
	case 'm':
		shift = 20
	case 'g':
		shift = 30
	}
	if shift > 0 {
		str = str[:len(str)-1]
	}
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", str, err)
	}
	*s = Size(n << shift)
	return nil
}

func (s Size) String() string {
	t := uint64(s)
	switch {
	case t < 1<<10:
		return fmt.Sprintf("%d B", t)
	case t < 1<<20:
		return fmt.Sprintf("%.1f KiB", float64(t)/float64(1<<10))
	case t < 1<<30:
		return fmt.Sprintf("%.1f MiB", float64(t)/float64(1<<20))
	default:
		return fmt.Sprintf("%.1f GiB", float64(t)/float64(1<<30))
	}
}

// Byte return size in bytes
func (s Size) Byte() uint64 {
	return uint64(s)
}

// MiB return size in MiB
func (s Size) MiB() uint64 {
	return uint64(s) >> 20
}
