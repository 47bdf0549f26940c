package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMissingField is returned when a payload lacks a field the caller requires.
var ErrMissingField = errors.New("required field missing")

// Record is a single JSON object returned by the API. Its schema is opaque;
// fields are read with gjson paths such as "context.0.contextValue".
type Record json.RawMessage

// Get returns the value at the given gjson path.
func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r, path)
}

// String returns the value at path as a string, or "" when absent.
func (r Record) String(path string) string {
	return r.Get(path).String()
}

// Int returns the value at path as an integer, or 0 when absent.
func (r Record) Int(path string) int64 {
	return r.Get(path).Int()
}

// Require returns the value at path, failing with ErrMissingField when absent.
func (r Record) Require(path string) (gjson.Result, error) {
	v := r.Get(path)
	if !v.Exists() {
		return v, fmt.Errorf("%w: %s", ErrMissingField, path)
	}
	return v, nil
}

// Map decodes the record into a generic map.
func (r Record) Map() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r, &m); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return m, nil
}

// MarshalJSON emits the record unchanged.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of the raw object.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Page is one response from a cursor-paginated list endpoint.
type Page struct {
	Data []Record
	// Next is the continuation cursor; empty means this is the last page.
	Next string
}

// ParsePage decodes a list response body of the form
// {"data": [...], "page": {"next": "..."}}.
func ParsePage(body []byte) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, errors.New("response body is not valid JSON")
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return Page{}, fmt.Errorf("%w: data", ErrMissingField)
	}
	if !data.IsArray() {
		return Page{}, fmt.Errorf("field data is %s, expected array", data.Type)
	}

	var page Page
	for _, item := range data.Array() {
		page.Data = append(page.Data, Record(item.Raw))
	}
	page.Next = gjson.GetBytes(body, "page.next").String()
	return page, nil
}
