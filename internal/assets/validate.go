package assets

import (
	"io/fs"

	"github.com/natours-dev/natours/internal/xerrors"
)

// ValidationOptions are the checks a new bundle must pass before it is
// swapped in.
type ValidationOptions struct {
	// Required files must exist and be non-empty.
	Required []string
	// MinFiles of 0 disables the count check.
	MinFiles int
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		Required: []string{"css/style.css", "js/index.js"},
		MinFiles: 3,
	}
}

func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil || snap.FS == nil {
		return xerrors.New("validate: snapshot has no filesystem")
	}
	for _, name := range opts.Required {
		info, err := fs.Stat(snap.FS, name)
		if err != nil {
			return xerrors.Wrapf(err, "validate: %s missing", name)
		}
		if info.IsDir() || info.Size() == 0 {
			return xerrors.Newf("validate: %s is empty", name)
		}
	}
	if opts.MinFiles > 0 {
		n := 0
		err := fs.WalkDir(snap.FS, ".", func(_ string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				n++
			}
			return err
		})
		if err != nil {
			return xerrors.Wrap(err, "validate: walk bundle")
		}
		if n < opts.MinFiles {
			return xerrors.Newf("validate: bundle has %d files, want at least %d", n, opts.MinFiles)
		}
	}
	return nil
}
