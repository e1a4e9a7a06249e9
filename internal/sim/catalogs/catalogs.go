package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Item kinds.
const (
	KindFood       = "FOOD"
	KindConsumable = "CONSUMABLE"
	KindWeapon     = "WEAPON"
	KindArmor      = "ARMOR"
	KindTool       = "TOOL"
	KindMisc       = "MISC"
)

type ItemDef struct {
	ID      string   `yaml:"id"`
	Kind    string   `yaml:"kind"`
	HealHP  int      `yaml:"heal_hp,omitempty"`
	Value   int      `yaml:"value,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Usable reports whether UseItem can consume the item.
func (d ItemDef) Usable() bool {
	return (d.Kind == KindFood || d.Kind == KindConsumable) && d.HealHP > 0
}

type ItemCatalog struct {
	Palette    []string
	Defs       map[string]ItemDef
	DefsDigest string

	aliases map[string]string
}

func (c *ItemCatalog) Get(id string) (ItemDef, bool) {
	if c == nil {
		return ItemDef{}, false
	}
	d, ok := c.Defs[id]
	return d, ok
}

// Resolve maps an id or alias (case-insensitive) to the canonical item id.
// Unknown names are returned unchanged.
func (c *ItemCatalog) Resolve(name string) string {
	if c == nil {
		return name
	}
	if _, ok := c.Defs[name]; ok {
		return name
	}
	if id, ok := c.aliases[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// Load reads items.yaml from configDir.
func Load(configDir string) (*ItemCatalog, error) {
	return LoadItems(filepath.Join(configDir, "items.yaml"))
}

func LoadItems(path string) (*ItemCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Items []ItemDef `yaml:"items"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("items.yaml: %w", err)
	}
	c, err := NewItemCatalog(doc.Items)
	if err != nil {
		return nil, fmt.Errorf("items.yaml: %w", err)
	}
	c.DefsDigest = sha256Hex(raw)
	return c, nil
}

// NewItemCatalog indexes defs. Ids and aliases must be unique.
func NewItemCatalog(defs []ItemDef) (*ItemCatalog, error) {
	c := &ItemCatalog{
		Defs:    make(map[string]ItemDef, len(defs)),
		aliases: map[string]string{},
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("empty id")
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate id %q", d.ID)
		}
		if d.Kind == "" {
			d.Kind = KindMisc
		}
		if d.HealHP < 0 {
			return nil, fmt.Errorf("item %q: negative heal_hp", d.ID)
		}
		c.Defs[d.ID] = d
	}
	for _, d := range c.Defs {
		for _, a := range d.Aliases {
			key := strings.ToLower(a)
			if prev, ok := c.aliases[key]; ok && prev != d.ID {
				return nil, fmt.Errorf("alias %q used by %q and %q", a, prev, d.ID)
			}
			c.aliases[key] = d.ID
		}
	}
	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	c.Palette = ids
	return c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
