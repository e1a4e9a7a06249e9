package catalogs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repoConfigs(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

func TestLoad_RepoCatalog(t *testing.T) {
	c, err := Load(repoConfigs(t))
	require.NoError(t, err)
	require.NotEmpty(t, c.Palette)
	assert.NotEmpty(t, c.DefsDigest)

	potion, ok := c.Get("potion")
	require.True(t, ok)
	assert.True(t, potion.Usable())
	assert.Equal(t, 80, potion.HealHP)

	sword, ok := c.Get("sword")
	require.True(t, ok)
	assert.False(t, sword.Usable())
}

func TestResolveAlias(t *testing.T) {
	c, err := NewItemCatalog([]ItemDef{
		{ID: "apple", Kind: KindFood, HealHP: 10, Aliases: []string{"Red Apple"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "apple", c.Resolve("red apple"))
	assert.Equal(t, "apple", c.Resolve("apple"))
	assert.Equal(t, "pear", c.Resolve("pear"))
}

func TestNewItemCatalog_Rejects(t *testing.T) {
	_, err := NewItemCatalog([]ItemDef{{ID: ""}})
	assert.Error(t, err)

	_, err = NewItemCatalog([]ItemDef{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	_, err = NewItemCatalog([]ItemDef{
		{ID: "a", Aliases: []string{"x"}},
		{ID: "b", Aliases: []string{"X"}},
	})
	assert.Error(t, err)
}

func TestLoadItems_BadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(p, []byte("items: [\n"), 0o644))
	_, err := LoadItems(p)
	assert.Error(t, err)
}
