package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"rewards_webapp/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// Catalog holds the read-only quest and chest configuration
type Catalog struct {
	Quests []domain.QuestDefinition `yaml:"quests"`
	Chests []domain.ChestTier       `yaml:"chests"`

	byID map[string]domain.QuestDefinition
}

// Load reads the catalog file, an empty path means the embedded default
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded catalog
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds a catalog from in-memory definitions
func New(quests []domain.QuestDefinition, chests []domain.ChestTier) (*Catalog, error) {
	c := &Catalog{Quests: quests, Chests: chests}
	if err := c.index(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() error {
	c.byID = make(map[string]domain.QuestDefinition, len(c.Quests))
	for _, q := range c.Quests {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := c.byID[q.ID]; dup {
			return fmt.Errorf("duplicate quest id %q", q.ID)
		}
		c.byID[q.ID] = q
	}
	for i, t := range c.Chests {
		if t.GemCost <= 0 {
			return fmt.Errorf("chest %d (%s): gemCost must be positive", i, t.Name)
		}
		if t.VIP < 0 {
			return fmt.Errorf("chest %d (%s): negative vip", i, t.Name)
		}
	}
	return nil
}

// Quest looks up a quest definition by id
func (c *Catalog) Quest(id string) (domain.QuestDefinition, bool) {
	q, ok := c.byID[id]
	return q, ok
}

// Chest returns the tier at index
func (c *Catalog) Chest(index int) (domain.ChestTier, bool) {
	if index < 0 || index >= len(c.Chests) {
		return domain.ChestTier{}, false
	}
	return c.Chests[index], true
}
