// Package reporttest provides an in-memory report.Source for tests.
package reporttest

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/buemura/sectools/pkg/types"
)

// Call records one request made against a Source.
type Call struct {
	Method string
	Ref    string
	Query  url.Values
}

// Source serves canned list and object responses keyed by path.
type Source struct {
	Lists   map[string][]types.Record
	Objects map[string]types.Record
	// Err, if set, is returned from every call.
	Err error

	mu    sync.Mutex
	calls []Call
}

// NewSource returns an empty Source.
func NewSource() *Source {
	return &Source{
		Lists:   make(map[string][]types.Record),
		Objects: make(map[string]types.Record),
	}
}

// List registers the records served for path.
func (s *Source) List(path string, records ...string) *Source {
	for _, r := range records {
		s.Lists[path] = append(s.Lists[path], types.Record(r))
	}
	return s
}

// Object registers the object served for ref.
func (s *Source) Object(ref, body string) *Source {
	s.Objects[ref] = types.Record(body)
	return s
}

func (s *Source) FetchAll(_ context.Context, path string, query url.Values) ([]types.Record, error) {
	s.record("LIST", path, query)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Lists[path], nil
}

func (s *Source) Get(_ context.Context, ref string, query url.Values) (types.Record, error) {
	s.record("GET", ref, query)
	if s.Err != nil {
		return nil, s.Err
	}
	obj, ok := s.Objects[ref]
	if !ok {
		return nil, fmt.Errorf("no object registered for %s", ref)
	}
	return obj, nil
}

// Calls returns a copy of the recorded calls.
func (s *Source) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many calls targeted ref.
func (s *Source) Count(ref string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Ref == ref {
			n++
		}
	}
	return n
}

func (s *Source) record(method, ref string, query url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Ref: ref, Query: query})
}
