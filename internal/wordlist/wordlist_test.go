package wordlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("file source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pw.txt")
		require.NoError(t, os.WriteFile(path, []byte("alpha\n  beta \n\n\r\ngamma\r\n"), 0o600))

		got, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta", "gamma"}, got)
	})

	t.Run("comma list source", func(t *testing.T) {
		got, err := Load("Password123, abc123,,  ,letmein")
		require.NoError(t, err)
		assert.Equal(t, []string{"Password123", "abc123", "letmein"}, got)
	})

	t.Run("single literal", func(t *testing.T) {
		got, err := Load("hunter2")
		require.NoError(t, err)
		assert.Equal(t, []string{"hunter2"}, got)
	})

	t.Run("empty source", func(t *testing.T) {
		got, err := Load("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("directory is rejected", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}

func TestParse_LongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	got, err := Parse(strings.NewReader("a\n" + long + "\nb\n"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Len(t, got[1], len(long))
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"123456", "password"}, []string{"password", "hunter2", "123456"}, nil)
	assert.Equal(t, []string{"123456", "password", "hunter2"}, got)
	assert.Empty(t, Merge())
}
