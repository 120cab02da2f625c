package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
)

// ErrCatalogIntegrity marks authoring errors in catalog data. It is fatal at startup.
var ErrCatalogIntegrity = errors.New("catalog integrity")

// maxHintDistance bounds how far a "did you mean" suggestion may be from the typo.
const maxHintDistance = 3

type problems struct {
	errs []error
}

func (p *problems) add(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf(format, args...))
}

func (p *problems) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCatalogIntegrity, errors.Join(p.errs...))
}

// Validate checks that every id referenced by a reward, requirement or
// cross reference exists, and that structural rules hold.
func (c *Catalog) Validate() error {
	var p problems

	c.checkUnique(&p)

	starts := 0
	for _, z := range c.Zones {
		if z.Start {
			starts++
		}
	}
	if starts != 1 {
		p.add("want exactly one start zone, got %d", starts)
	}

	for _, t := range c.Traits {
		if t.Rarity < Common || t.Rarity > Legendary {
			p.add("trait %s: invalid rarity %d", t.ID, t.Rarity)
		}
	}

	for _, z := range c.Zones {
		where := "zone " + z.ID
		if z.Start && (z.RequiredLevel > 1 || len(z.RequiredTraitIDs) > 0) {
			p.add("%s: start zone cannot have unlock requirements", where)
		}
		c.checkTraitRefs(&p, where, z.RequiredTraitIDs)
		for _, qid := range z.QuestIDs {
			q, ok := c.Quest(qid)
			if !ok {
				p.add("%s: unknown quest %q%s", where, qid, hint(qid, c.questIDs()))
				continue
			}
			if q.ZoneID != z.ID {
				p.add("%s: lists quest %s which belongs to zone %s", where, qid, q.ZoneID)
			}
		}
	}

	for _, q := range c.Quests {
		where := "quest " + q.ID
		if _, ok := c.Zone(q.ZoneID); !ok {
			p.add("%s: unknown zone %q%s", where, q.ZoneID, hint(q.ZoneID, c.zoneIDs()))
		}
		c.checkTraitRefs(&p, where, q.RequiredTraitIDs)
		objIDs := map[string]bool{}
		for _, o := range q.Objectives {
			if o.Max < 1 {
				p.add("%s: objective %s max must be >= 1", where, o.ID)
			}
			if objIDs[o.ID] {
				p.add("%s: duplicate objective id %s", where, o.ID)
			}
			objIDs[o.ID] = true
		}
		c.checkRewards(&p, where, q.Rewards)
		choiceIDs := map[string]bool{}
		for _, ch := range q.StoryChoices {
			if ch.ID == "" {
				p.add("%s: story choice with empty id", where)
			}
			if choiceIDs[ch.ID] {
				p.add("%s: duplicate story choice id %s", where, ch.ID)
			}
			choiceIDs[ch.ID] = true
			c.checkRewards(&p, where+" choice "+ch.ID, ch.Consequences)
		}
	}

	for _, a := range c.Achievements {
		where := "achievement " + a.ID
		if len(a.Requirements) == 0 {
			p.add("%s: no requirements", where)
		}
		for _, r := range a.Requirements {
			switch r.Kind {
			case ReqQuestsCompleted, ReqUniqueTraits, ReqZonesUnlocked, ReqLevelReached, ReqStoryChoicesMade:
				if r.Target < 1 {
					p.add("%s: %s target must be >= 1", where, r.Kind)
				}
			case ReqHasTrait:
				c.checkTraitRefs(&p, where, []string{r.Ref})
			case ReqZoneQuestsCompleted:
				if r.Target < 1 {
					p.add("%s: %s target must be >= 1", where, r.Kind)
				}
				if _, ok := c.Zone(r.Ref); !ok {
					p.add("%s: unknown zone %q%s", where, r.Ref, hint(r.Ref, c.zoneIDs()))
				}
			default:
				p.add("%s: unknown requirement type %q", where, r.Kind)
			}
		}
		c.checkRewards(&p, where, a.Rewards)
	}

	for _, l := range c.Levels {
		where := fmt.Sprintf("level %d", l.Level)
		if l.Level < 2 {
			p.add("%s: level rewards start at level 2", where)
		}
		for _, r := range l.Rewards {
			if r.Kind == RewardXP {
				p.add("%s: level rewards cannot grant xp", where)
			}
		}
		c.checkRewards(&p, where, l.Rewards)
	}

	return p.err()
}

func (c *Catalog) checkUnique(p *problems) {
	dup := func(kind string, ids []string) {
		seen := map[string]bool{}
		for _, id := range ids {
			if id == "" {
				p.add("%s with empty id", kind)
				continue
			}
			if seen[id] {
				p.add("duplicate %s id %s", kind, id)
			}
			seen[id] = true
		}
	}
	dup("zone", c.zoneIDs())
	dup("quest", c.questIDs())
	dup("trait", c.traitIDs())
	achIDs := make([]string, 0, len(c.Achievements))
	for _, a := range c.Achievements {
		achIDs = append(achIDs, a.ID)
	}
	dup("achievement", achIDs)
	levels := map[int]bool{}
	for _, l := range c.Levels {
		if levels[l.Level] {
			p.add("duplicate level reward for level %d", l.Level)
		}
		levels[l.Level] = true
	}
}

func (c *Catalog) checkTraitRefs(p *problems, where string, ids []string) {
	for _, id := range ids {
		if _, ok := c.Trait(id); !ok {
			p.add("%s: unknown trait %q%s", where, id, hint(id, c.traitIDs()))
		}
	}
}

func (c *Catalog) checkRewards(p *problems, where string, rewards []Reward) {
	for _, r := range rewards {
		if err := r.Validate(); err != nil {
			p.add("%s: %v", where, err)
			continue
		}
		switch r.Kind {
		case RewardTrait:
			c.checkTraitRefs(p, where, []string{r.ID})
		case RewardZoneUnlock:
			if _, ok := c.Zone(r.ID); !ok {
				p.add("%s: unknown zone %q%s", where, r.ID, hint(r.ID, c.zoneIDs()))
			}
		}
	}
}

func (c *Catalog) zoneIDs() []string {
	out := make([]string, 0, len(c.Zones))
	for _, z := range c.Zones {
		out = append(out, z.ID)
	}
	return out
}

func (c *Catalog) questIDs() []string {
	out := make([]string, 0, len(c.Quests))
	for _, q := range c.Quests {
		out = append(out, q.ID)
	}
	return out
}

func (c *Catalog) traitIDs() []string {
	out := make([]string, 0, len(c.Traits))
	for _, t := range c.Traits {
		out = append(out, t.ID)
	}
	return out
}

// hint suggests the closest known id for a misspelt reference.
func hint(id string, known []string) string {
	best, bestDist := "", maxHintDistance+1
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if d := levenshtein.ComputeDistance(id, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}
