// Package export writes result files that must never overwrite existing data.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// ErrOutputExists is returned when the target path is already present.
var ErrOutputExists = errors.New("output file already exists")

// CheckAbsent fails with ErrOutputExists if path exists. Commands call it
// before any API request so a bad path fails fast.
func CheckAbsent(path string) error {
	if path == "" {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrOutputExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("checking output file %s: %w", path, err)
	}
}

// Create opens path for writing, failing if it already exists.
func Create(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, path)
		}
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

// WriteJSON writes v as indented JSON to a new file at path.
func WriteJSON(path string, v any) error {
	return WriteWith(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteWith creates path and hands it to write. A failed write removes the
// partial file.
func WriteWith(path string, write func(io.Writer) error) error {
	f, err := Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
