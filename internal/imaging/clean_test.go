package imaging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanedPath(t *testing.T) {
	assert.Equal(t, "/themes/paws_clean.png", cleanedPath("/themes/paws.png"))
	assert.Equal(t, "/themes/paws_clean.png", cleanedPath("/themes/paws.jpeg"))
	assert.Equal(t, "ref_clean.png", cleanedPath("ref.webp"))
}

func TestCleanReferenceImageReusesFreshOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ref.png")
	cleaned := filepath.Join(dir, "ref_clean.png")

	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))
	require.NoError(t, os.WriteFile(cleaned, []byte("cleaned"), 0644))

	// Make the source clearly older than the cleaned copy.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, old, old))

	got, err := CleanReferenceImage(src)
	require.NoError(t, err)
	assert.Equal(t, cleaned, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("cleaned"), data)
}

func TestCleanReferenceImageMissingSource(t *testing.T) {
	_, err := CleanReferenceImage(filepath.Join(t.TempDir(), "nope.png"))
	require.Error(t, err)
}
