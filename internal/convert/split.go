package convert

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/buemura/sectools/internal/export"
)

// DefaultSplitLines is the number of lines per output file.
const DefaultSplitLines = 1000000

type chunk struct {
	f *os.File
	w *bufio.Writer
	n int
}

func (c *chunk) close() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// Split copies path into path.1, path.2, ... with at most lines lines
// each and returns the files written. Existing chunk files are never
// overwritten.
func Split(path string, lines int) ([]string, error) {
	if lines <= 0 {
		lines = DefaultSplitLines
	}
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer in.Close()

	var (
		written []string
		cur     *chunk
	)
	r := bufio.NewReader(in)
	for {
		line, rerr := r.ReadString('\n')
		if len(line) > 0 {
			if cur == nil {
				name := fmt.Sprintf("%s.%d", path, len(written)+1)
				f, err := export.Create(name)
				if err != nil {
					return written, err
				}
				cur = &chunk{f: f, w: bufio.NewWriter(f)}
				written = append(written, name)
			}
			if _, err := cur.w.WriteString(line); err != nil {
				cur.close()
				return written, fmt.Errorf("writing %s: %w", written[len(written)-1], err)
			}
			cur.n++
			if cur.n == lines {
				if err := cur.close(); err != nil {
					return written, err
				}
				cur = nil
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if cur != nil {
				cur.close()
			}
			return written, fmt.Errorf("reading %s: %w", path, rerr)
		}
	}
	if cur != nil {
		if err := cur.close(); err != nil {
			return written, err
		}
	}
	return written, nil
}
