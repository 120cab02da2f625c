package progression

import (
	"fmt"
	"strconv"

	"lorebound.gg/internal/catalog"
)

// Rules is the read-only catalog surface the engine consults.
type Rules interface {
	StartZone() string
	Zone(id string) (catalog.Zone, bool)
	Quest(id string) (catalog.Quest, bool)
	Trait(id string) (catalog.Trait, bool)
	Achievement(id string) (catalog.Achievement, bool)
	LevelRewards(level int) []catalog.Reward
}

// RewardLevelUp marks a synthetic grant reporting a crossed level
// threshold; Reward.Amount holds the level reached.
const RewardLevelUp catalog.RewardKind = "level_up"

// Grant is one effective payout and where it came from:
// quest:<id>, choice:<quest>/<choice>, level:<n> or achievement:<id>.
type Grant struct {
	Reward catalog.Reward `json:"reward"`
	Source string         `json:"source"`
}

type Outcome struct {
	Player Player  `json:"player"`
	Grants []Grant `json:"grants,omitempty"`
}

// NFTs returns the nft grants of o in order.
func (o Outcome) NFTs() []Grant {
	var out []Grant
	for _, g := range o.Grants {
		if g.Reward.Kind == catalog.RewardNFT {
			out = append(out, g)
		}
	}
	return out
}

// Engine computes player transitions. It holds no state besides its rules
// and never mutates its input.
type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules}
}

func (e *Engine) Rules() Rules { return e.rules }

// NewPlayer is the default player for walletID.
func (e *Engine) NewPlayer(walletID string) Player {
	return NewPlayer(walletID, e.rules.StartZone())
}

// Normalize repairs a ledger-loaded player against the rules' start zone.
func (e *Engine) Normalize(p Player) Player {
	return Normalize(p, e.rules.StartZone())
}

// tx accumulates changes against a private copy of the player.
type tx struct {
	rules  Rules
	p      Player
	grants []Grant
}

func (e *Engine) begin(p Player) *tx {
	return &tx{rules: e.rules, p: p.Clone()}
}

func (t *tx) outcome() Outcome {
	return Outcome{Player: t.p, Grants: t.grants}
}

func (t *tx) report(r catalog.Reward, source string) {
	t.grants = append(t.grants, Grant{Reward: r, Source: source})
}

func (t *tx) apply(r catalog.Reward, source string) {
	switch r.Kind {
	case catalog.RewardXP:
		t.addXP(r, source)
	case catalog.RewardTrait:
		if t.p.HasTrait(r.ID) {
			return
		}
		t.p.Traits = append(t.p.Traits, r.ID)
		t.report(r, source)
	case catalog.RewardZoneUnlock:
		if t.p.HasZone(r.ID) {
			return
		}
		t.p.UnlockedZoneIDs = append(t.p.UnlockedZoneIDs, r.ID)
		t.report(r, source)
	case catalog.RewardNFT:
		if r.NFT == nil || t.p.HasNFT(r.NFT.ID) {
			return
		}
		t.p.NFTIDs = append(t.p.NFTIDs, r.NFT.ID)
		t.report(r, source)
	}
}

// addXP raises xp and walks every crossed level threshold in ascending
// order, applying each level's rewards exactly once.
func (t *tx) addXP(r catalog.Reward, source string) {
	if r.Amount <= 0 {
		return
	}
	from := t.p.Level
	t.p.XP += r.Amount
	t.p.Level = LevelFor(t.p.XP)
	t.report(r, source)
	to := t.p.Level
	for l := from + 1; l <= to; l++ {
		levelSource := "level:" + strconv.Itoa(l)
		t.report(catalog.Reward{Kind: RewardLevelUp, Amount: l}, levelSource)
		for _, lr := range t.rules.LevelRewards(l) {
			t.apply(lr, levelSource)
		}
	}
}

// GrantExperience adds amount xp, processing level-ups in order.
func (e *Engine) GrantExperience(p Player, amount int) (Outcome, error) {
	if amount < 0 {
		return Outcome{Player: p}, fmt.Errorf("%w: %d", ErrNegativeExperience, amount)
	}
	t := e.begin(p)
	t.apply(catalog.XPReward(amount), "xp")
	return t.outcome(), nil
}

// CheckQuest returns nil when questID may be completed by p with the given
// story choice.
func (e *Engine) CheckQuest(p Player, questID, choiceID string) error {
	q, ok := e.rules.Quest(questID)
	if !ok {
		return &QuestStateError{QuestID: questID, Reason: "unknown quest"}
	}
	if p.HasCompleted(questID) {
		return &QuestStateError{QuestID: questID, Reason: "already completed"}
	}
	if p.Level < q.RequiredLevel {
		return &QuestStateError{QuestID: questID, Reason: fmt.Sprintf("requires level %d", q.RequiredLevel)}
	}
	for _, id := range q.RequiredTraitIDs {
		if !p.HasTrait(id) {
			return &QuestStateError{QuestID: questID, Reason: "requires trait " + id}
		}
	}
	if !p.HasZone(q.ZoneID) {
		return &QuestStateError{QuestID: questID, Reason: "zone " + q.ZoneID + " is locked"}
	}
	if choiceID != "" && len(q.StoryChoices) > 0 {
		if _, ok := q.Choice(choiceID); !ok {
			return &QuestStateError{QuestID: questID, Reason: "unknown story choice " + choiceID}
		}
	}
	return nil
}

// CompleteQuest applies the quest's base rewards in declaration order, then
// the chosen story choice's consequences, and marks the quest completed.
// On error the returned outcome carries p unchanged.
func (e *Engine) CompleteQuest(p Player, questID, choiceID string) (Outcome, error) {
	if err := e.CheckQuest(p, questID, choiceID); err != nil {
		return Outcome{Player: p}, err
	}
	q, _ := e.rules.Quest(questID)
	t := e.begin(p)
	for _, r := range q.Rewards {
		t.apply(r, "quest:"+q.ID)
	}
	if ch, ok := q.Choice(choiceID); ok && choiceID != "" {
		for _, r := range ch.Consequences {
			t.apply(r, "choice:"+q.ID+"/"+ch.ID)
		}
		t.p.StoryChoiceLog = append(t.p.StoryChoiceLog, StoryChoiceRecord{QuestID: q.ID, ChoiceID: ch.ID})
	}
	t.p.CompletedQuestIDs = append(t.p.CompletedQuestIDs, q.ID)
	return t.outcome(), nil
}

// AssignTrait grants traitID. Holding it already is a no-op.
func (e *Engine) AssignTrait(p Player, traitID string) (Outcome, error) {
	if _, ok := e.rules.Trait(traitID); !ok {
		return Outcome{Player: p}, fmt.Errorf("%w: %s", ErrUnknownTrait, traitID)
	}
	t := e.begin(p)
	t.apply(catalog.TraitReward(traitID), "trait")
	return t.outcome(), nil
}

// UnlockZone grants zoneID regardless of its preconditions. Already
// unlocked is a no-op.
func (e *Engine) UnlockZone(p Player, zoneID string) (Outcome, error) {
	if _, ok := e.rules.Zone(zoneID); !ok {
		return Outcome{Player: p}, &ZoneStateError{ZoneID: zoneID, Reason: "unknown zone"}
	}
	t := e.begin(p)
	t.apply(catalog.ZoneReward(zoneID), "zone")
	return t.outcome(), nil
}

// CheckZone returns nil when p meets zoneID's own unlock preconditions.
func (e *Engine) CheckZone(p Player, zoneID string) error {
	z, ok := e.rules.Zone(zoneID)
	if !ok {
		return &ZoneStateError{ZoneID: zoneID, Reason: "unknown zone"}
	}
	if p.Level < z.RequiredLevel {
		return &ZoneStateError{ZoneID: zoneID, Reason: fmt.Sprintf("requires level %d", z.RequiredLevel)}
	}
	for _, id := range z.RequiredTraitIDs {
		if !p.HasTrait(id) {
			return &ZoneStateError{ZoneID: zoneID, Reason: "requires trait " + id}
		}
	}
	return nil
}

// UnlockReachableZone is the player-initiated unlock: the zone's level and
// trait preconditions must hold.
func (e *Engine) UnlockReachableZone(p Player, zoneID string) (Outcome, error) {
	if p.HasZone(zoneID) {
		return Outcome{Player: p.Clone()}, nil
	}
	if err := e.CheckZone(p, zoneID); err != nil {
		return Outcome{Player: p}, err
	}
	return e.UnlockZone(p, zoneID)
}

// EnterZone moves the player to an unlocked zone.
func (e *Engine) EnterZone(p Player, zoneID string) (Outcome, error) {
	if _, ok := e.rules.Zone(zoneID); !ok {
		return Outcome{Player: p}, &ZoneStateError{ZoneID: zoneID, Reason: "unknown zone"}
	}
	if !p.HasZone(zoneID) {
		return Outcome{Player: p}, &ZoneStateError{ZoneID: zoneID, Reason: "locked"}
	}
	t := e.begin(p)
	t.p.CurrentZoneID = zoneID
	return t.outcome(), nil
}

// ClaimAchievement records an unlocked achievement and applies its rewards.
// Claiming twice is a no-op; claiming before every requirement holds fails
// with ErrAchievementLocked.
func (e *Engine) ClaimAchievement(p Player, achievementID string) (Outcome, error) {
	a, ok := e.rules.Achievement(achievementID)
	if !ok {
		return Outcome{Player: p}, fmt.Errorf("%w: unknown achievement %s", ErrAchievementLocked, achievementID)
	}
	if p.HasAchievement(a.ID) {
		return Outcome{Player: p.Clone()}, nil
	}
	if !Met(p, e.rules, a.Requirements) {
		return Outcome{Player: p}, fmt.Errorf("%w: %s", ErrAchievementLocked, a.ID)
	}
	t := e.begin(p)
	t.p.AchievementIDs = append(t.p.AchievementIDs, a.ID)
	for _, r := range a.Rewards {
		t.apply(r, "achievement:"+a.ID)
	}
	return t.outcome(), nil
}
