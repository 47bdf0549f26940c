package secure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/buemura/sectools/pkg/types"
	"github.com/tidwall/gjson"
)

// FetchAll walks a cursor-paginated list endpoint and returns every record
// in page order. The first request carries an empty cursor; paging stops
// when page.next is absent or empty.
func (s *Session) FetchAll(ctx context.Context, path string, query url.Values) ([]types.Record, error) {
	q := cloneQuery(query)
	cursor := ""

	var records []types.Record
	for page := 1; ; page++ {
		q.Set("cursor", cursor)
		rawURL, err := s.resolve(path, q)
		if err != nil {
			return nil, err
		}

		var body []byte
		err = s.do(ctx, http.MethodGet, rawURL, func(r io.Reader) error {
			var readErr error
			body, readErr = readAll(http.MethodGet, rawURL, r)
			return readErr
		})
		if err != nil {
			return nil, err
		}

		p, err := types.ParsePage(body)
		if err != nil {
			return nil, &DecodeError{URL: rawURL, Err: err}
		}
		records = append(records, p.Data...)
		s.logger.Debug("fetched page", "path", path, "page", page, "records", len(p.Data), "total", len(records))

		if p.Next == "" {
			return records, nil
		}
		cursor = p.Next
	}
}

// Get fetches a single JSON object. ref may be a path relative to the
// endpoint or an absolute URL.
func (s *Session) Get(ctx context.Context, ref string, query url.Values) (types.Record, error) {
	rawURL, err := s.resolve(ref, query)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = s.do(ctx, http.MethodGet, rawURL, func(r io.Reader) error {
		var readErr error
		body, readErr = readAll(http.MethodGet, rawURL, r)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &DecodeError{URL: rawURL, Err: errors.New("response body is not valid JSON")}
	}
	return types.Record(body), nil
}

// Download streams the body of a successful GET into w and returns the
// number of bytes written.
func (s *Session) Download(ctx context.Context, ref string, w io.Writer) (int64, error) {
	rawURL, err := s.resolve(ref, nil)
	if err != nil {
		return 0, err
	}

	var written int64
	err = s.do(ctx, http.MethodGet, rawURL, func(r io.Reader) error {
		n, copyErr := io.Copy(w, r)
		written = n
		if copyErr != nil {
			return &NetworkError{Method: http.MethodGet, URL: rawURL, Err: copyErr}
		}
		return nil
	})
	return written, err
}

// Delete removes a single resource at <path>/<id>. It uses the same retry
// discipline as FetchAll; callers deduplicate ids.
func (s *Session) Delete(ctx context.Context, path, id string) error {
	if id == "" {
		return fmt.Errorf("delete %s: empty id", path)
	}
	rawURL, err := s.resolve(strings.TrimSuffix(path, "/")+"/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodDelete, rawURL, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	s.logger.Debug("deleted resource", "path", path, "id", id)
	return nil
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q)+1)
	for k, vs := range q {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
