package hostfiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHostname_Overwrites(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.WriteHostname("first.example.com"))
	require.NoError(t, s.WriteHostname("second.example.com"))

	got, err := s.Hostname()
	require.NoError(t, err)
	assert.Equal(t, "second.example.com", got)
}

func TestSetVhost_EnableThenDisable(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.SetVhost(true, "apps.example.com"))
	data, err := os.ReadFile(filepath.Join(dir, VhostFile))
	require.NoError(t, err)
	assert.Equal(t, "apps.example.com", string(data))

	require.NoError(t, s.SetVhost(false, "apps.example.com"))
	assert.NoFileExists(t, filepath.Join(dir, VhostFile))
}

func TestSetVhost_DisableWhenAbsent(t *testing.T) {
	s := NewStore(t.TempDir())
	assert.NoError(t, s.SetVhost(false, "x"))
}

func TestHostname_Absent(t *testing.T) {
	s := NewStore(t.TempDir())
	got, err := s.Hostname()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestWriteHostname_MissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	err := s.WriteHostname("example.com")
	assert.Error(t, err)
}

func TestWriteHostname_LiteralContent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.WriteHostname("example.com"))

	data, err := os.ReadFile(filepath.Join(dir, HostnameFile))
	require.NoError(t, err)
	assert.Equal(t, "example.com", string(data))
}
