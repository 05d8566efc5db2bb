package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTargetsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "targets.txt")
	content := `# production targets
https://example.com

  https://shop.example.org
# commented out
example.net
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	reader := NewReader()
	targets, err := reader.ReadTargetsFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com",
		"https://shop.example.org",
		"example.net",
	}, targets)
}

func TestReadTargetsFromMissingFile(t *testing.T) {
	reader := NewReader()
	_, err := reader.ReadTargetsFromFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestReadTargetsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n# only a comment\n\n"), 0600))

	reader := NewReader()
	targets, err := reader.ReadTargetsFromFile(path)
	require.NoError(t, err)
	assert.Empty(t, targets)
}
