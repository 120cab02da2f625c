package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog is the immutable game content. Slices keep declaration order,
// which is the order every query reports results in.
type Catalog struct {
	Zones        []Zone
	Quests       []Quest
	Traits       []Trait
	Achievements []Achievement
	Levels       []LevelReward

	StartZoneID string

	// Digests holds the sha256 of each source file, keyed by file name.
	Digests map[string]string

	zoneIdx  map[string]int
	questIdx map[string]int
	traitIdx map[string]int
	achIdx   map[string]int
	levelIdx map[int]int
}

// New indexes the given definitions and runs the integrity check.
func New(zones []Zone, quests []Quest, traits []Trait, achievements []Achievement, levels []LevelReward) (*Catalog, error) {
	c := &Catalog{
		Zones:        zones,
		Quests:       quests,
		Traits:       traits,
		Achievements: achievements,
		Levels:       levels,
		Digests:      map[string]string{},
	}
	c.index()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index() {
	c.zoneIdx = make(map[string]int, len(c.Zones))
	for i, z := range c.Zones {
		if _, dup := c.zoneIdx[z.ID]; !dup {
			c.zoneIdx[z.ID] = i
		}
		if z.Start && c.StartZoneID == "" {
			c.StartZoneID = z.ID
		}
	}
	c.questIdx = make(map[string]int, len(c.Quests))
	for i, q := range c.Quests {
		if _, dup := c.questIdx[q.ID]; !dup {
			c.questIdx[q.ID] = i
		}
	}
	c.traitIdx = make(map[string]int, len(c.Traits))
	for i, t := range c.Traits {
		if _, dup := c.traitIdx[t.ID]; !dup {
			c.traitIdx[t.ID] = i
		}
	}
	c.achIdx = make(map[string]int, len(c.Achievements))
	for i, a := range c.Achievements {
		if _, dup := c.achIdx[a.ID]; !dup {
			c.achIdx[a.ID] = i
		}
	}
	c.levelIdx = make(map[int]int, len(c.Levels))
	for i, l := range c.Levels {
		if _, dup := c.levelIdx[l.Level]; !dup {
			c.levelIdx[l.Level] = i
		}
	}
}

func (c *Catalog) Zone(id string) (Zone, bool) {
	i, ok := c.zoneIdx[id]
	if !ok {
		return Zone{}, false
	}
	return c.Zones[i], true
}

func (c *Catalog) Quest(id string) (Quest, bool) {
	i, ok := c.questIdx[id]
	if !ok {
		return Quest{}, false
	}
	return c.Quests[i], true
}

func (c *Catalog) Trait(id string) (Trait, bool) {
	i, ok := c.traitIdx[id]
	if !ok {
		return Trait{}, false
	}
	return c.Traits[i], true
}

func (c *Catalog) Achievement(id string) (Achievement, bool) {
	i, ok := c.achIdx[id]
	if !ok {
		return Achievement{}, false
	}
	return c.Achievements[i], true
}

func (c *Catalog) StartZone() string { return c.StartZoneID }

// LevelRewards returns the grants attached to reaching level, or nil.
func (c *Catalog) LevelRewards(level int) []Reward {
	i, ok := c.levelIdx[level]
	if !ok {
		return nil
	}
	return c.Levels[i].Rewards
}

// Digest combines the per-file digests into one stable value.
func (c *Catalog) Digest() string {
	names := make([]string, 0, len(c.Digests))
	for n := range c.Digests {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(c.Digests[n])
		b.WriteByte('\n')
	}
	return sha256Hex([]byte(b.String()))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load reads the catalog files from configDir. Every file is checked
// against its schema before decoding; levels.json may be absent.
func Load(configDir string) (*Catalog, error) {
	var (
		traits       []Trait
		zones        []Zone
		quests       []Quest
		achievements []Achievement
		levels       []LevelReward
	)
	digests := map[string]string{}

	files := []struct {
		name     string
		out      any
		optional bool
	}{
		{name: "traits.json", out: &traits},
		{name: "zones.json", out: &zones},
		{name: "quests.json", out: &quests},
		{name: "achievements.json", out: &achievements, optional: true},
		{name: "levels.json", out: &levels, optional: true},
	}
	for _, f := range files {
		digest, err := loadFile(filepath.Join(configDir, f.name), f.name, f.out)
		if err != nil {
			if f.optional && os.IsNotExist(err) {
				digests[f.name] = sha256Hex(nil)
				continue
			}
			return nil, err
		}
		digests[f.name] = digest
	}

	c, err := New(zones, quests, traits, achievements, levels)
	if err != nil {
		return nil, err
	}
	c.Digests = digests
	return c, nil
}

func loadFile(path, name string, out any) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := validateDocument(name, raw); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return sha256Hex(raw), nil
}
