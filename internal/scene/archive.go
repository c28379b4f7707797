package scene

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mholt/archives"
)

// ErrCorruptArchive is returned when an input scene archive fails its
// integrity check. Jobs with corrupt inputs are skipped, never executed.
var ErrCorruptArchive = errors.New("corrupt input archive")

// errArchiveOK aborts the archive walk after the first readable entry.
var errArchiveOK = errors.New("archive ok")

// CheckArchive verifies that path is a readable, non-empty archive whose
// listing can be walked. It does not extract any payload; the external
// preprocessing tool does its own full read. A scene zip whose central
// directory is truncated or unidentifiable fails here instead of wasting a
// multi-hour preprocessing slot.
func CheckArchive(ctx context.Context, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrCorruptArchive, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer func() {
		_ = f.Close()
	}()

	format, stream, err := archives.Identify(ctx, path, f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, path, err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%w: %s is not an archive", ErrCorruptArchive, path)
	}

	err = extractor.Extract(ctx, stream, func(_ context.Context, _ archives.FileInfo) error {
		return errArchiveOK
	})
	if err != nil && !errors.Is(err, errArchiveOK) {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, path, err)
	}
	return nil
}
