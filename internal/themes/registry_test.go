package themes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	all := reg.All()
	require.NotEmpty(t, all)
	assert.Equal(t, "professor-paws", all[0].ID)

	theme, err := reg.Select("professor-paws")
	require.NoError(t, err)
	require.NotNil(t, theme)
	assert.Equal(t, "Professor Paws", theme.Label)
	assert.NotEmpty(t, theme.Identity)
	assert.NotEmpty(t, theme.StyleSuffix)
}

func TestSelectNoneDisablesTheming(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	for _, id := range []string{"", "none", "NONE", "  none  "} {
		theme, err := reg.Select(id)
		require.NoError(t, err)
		assert.Nil(t, theme)
	}
}

func TestSelectUnknownTheme(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)

	_, err = reg.Select("glass-gardener")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown theme")
}

func TestLoadFileReplacesRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "themes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
themes:
  - id: tide-walker
    label: Tide Walker
    identity: A wandering heron who narrates from the shoreline.
    style_suffix: muted watercolor, overcast coastal light
    reference_image: /app/data/themes/tide_walker.png
    narrator_hint: calm, reflective
`), 0644))

	reg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, reg.All(), 1)

	theme, err := reg.Select("tide-walker")
	require.NoError(t, err)
	assert.Equal(t, "/app/data/themes/tide_walker.png", theme.ReferenceImage)

	// The embedded defaults are gone once a file is supplied.
	_, err = reg.Select("professor-paws")
	require.Error(t, err)
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "themes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
themes:
  - id: twin
    label: One
    identity: a
    style_suffix: b
  - id: twin
    label: Two
    identity: c
    style_suffix: d
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate theme id")
}

func TestDecoratePrompt(t *testing.T) {
	theme := &Theme{StyleSuffix: "warm storybook illustration"}
	assert.Equal(t,
		"a fox crossing a frozen lake, warm storybook illustration",
		theme.DecoratePrompt("a fox crossing a frozen lake "))

	var none *Theme
	assert.Equal(t, "unchanged", none.DecoratePrompt("unchanged"))
	assert.Equal(t, "unchanged", (&Theme{}).DecoratePrompt("unchanged"))
}

func TestIdentityBlock(t *testing.T) {
	var none *Theme
	assert.Empty(t, none.IdentityBlock())
	assert.Equal(t, "The host is a heron.", (&Theme{Identity: "The host is a heron.\n"}).IdentityBlock())
}
