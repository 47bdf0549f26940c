package export

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/buemura/sectools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orphans.json")

	assert.NoError(t, CheckAbsent(path))
	assert.NoError(t, CheckAbsent(""))

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
	assert.ErrorIs(t, CheckAbsent(path), ErrOutputExists)
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orphans.json")
	entries := []types.Record{types.Record(`{"riskAcceptanceDefinitionID":"1"}`)}

	require.NoError(t, WriteJSON(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"riskAcceptanceDefinitionID":"1"}]`, string(data))
	assert.Contains(t, string(data), "\n  {")
}

func TestWriteJSON_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orphans.json")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	err := WriteJSON(path, []string{"x"})

	assert.ErrorIs(t, err, ErrOutputExists)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "keep", string(data))
}

func TestWriteWith_RemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")

	err := WriteWith(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})

	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
