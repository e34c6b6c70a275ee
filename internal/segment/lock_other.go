//go:build !unix

package segment

import (
	"errors"
	"fmt"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// acquireLock falls back to exclusive creation where flock is unavailable.
// A crashed writer leaves the file behind and it must be removed by hand.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, apperrors.ErrWriterLocked
		}
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
