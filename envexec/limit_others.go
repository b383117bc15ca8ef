//go:build !linux

package envexec

import (
	"errors"
	"os"
)

var errNoProcfs = errors.New("memory polling is only available on linux")

func setLimits(int, *Cmd) error {
	return nil
}

func memoryUsage(int) (Size, Size, error) {
	return 0, 0, errNoProcfs
}

func maxRSS(*os.ProcessState) Size {
	return 0
}
