//go:build !unix

package pipe

import (
	"errors"
	"os"
	"time"
)

func waitReadable(_ *os.File, _ time.Duration) (bool, error) {
	return false, errors.New("timed pipe reads are only supported on unix")
}
