package eligibility

import (
	"testing"

	"lorebound.gg/internal/catalog"
	"lorebound.gg/internal/progression"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	zones := []catalog.Zone{
		{ID: "glade", Name: "Glade", Start: true, QuestIDs: []string{"intro", "tracks", "lore"}},
		{ID: "cave", Name: "Cave", RequiredTraitIDs: []string{"explorer"}, QuestIDs: []string{"echo"}},
		{ID: "peak", Name: "Peak", RequiredLevel: 3, RequiredTraitIDs: []string{"explorer"}},
	}
	quests := []catalog.Quest{
		{ID: "intro", Title: "Intro", ZoneID: "glade", Rewards: []catalog.Reward{catalog.XPReward(40), catalog.TraitReward("explorer")}},
		{ID: "tracks", Title: "Tracks", ZoneID: "glade", RequiredTraitIDs: []string{"explorer"}, Rewards: []catalog.Reward{catalog.XPReward(10)}},
		{ID: "lore", Title: "Lore", ZoneID: "glade", RequiredLevel: 2},
		{ID: "echo", Title: "Echo", ZoneID: "cave"},
	}
	traits := []catalog.Trait{{ID: "explorer", Name: "Explorer"}}
	achs := []catalog.Achievement{
		{
			ID: "first_blood", Name: "First",
			Requirements: []catalog.Requirement{
				{Kind: catalog.ReqQuestsCompleted, Target: 1},
				{Kind: catalog.ReqUniqueTraits, Target: 1},
			},
		},
		{
			ID: "wanderer", Name: "Wanderer",
			Requirements: []catalog.Requirement{
				{Kind: catalog.ReqZonesUnlocked, Target: 3},
				{Kind: catalog.ReqHasTrait, Ref: "explorer"},
			},
		},
	}
	cat, err := catalog.New(zones, quests, traits, achs, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func questIDs(qs []catalog.Quest) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestAvailableQuests_RequiredTrait(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	p := e.NewPlayer("w1")

	got := questIDs(AvailableQuests(p, cat))
	if contains(got, "tracks") {
		t.Fatalf("tracks available without explorer: %v", got)
	}
	if len(got) != 1 || got[0] != "intro" {
		t.Fatalf("available=%v", got)
	}

	o, err := e.AssignTrait(p, "explorer")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	got = questIDs(AvailableQuests(o.Player, cat))
	if len(got) != 2 || got[0] != "intro" || got[1] != "tracks" {
		t.Fatalf("available after trait=%v", got)
	}
}

func TestAvailableQuests_ExcludesCompletedAndLockedZones(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	o, err := e.CompleteQuest(e.NewPlayer("w1"), "intro", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := questIDs(AvailableQuests(o.Player, cat))
	if contains(got, "intro") {
		t.Fatalf("completed quest still available: %v", got)
	}
	if contains(got, "echo") {
		t.Fatalf("quest in locked zone available: %v", got)
	}
	o, _ = e.UnlockZone(o.Player, "cave")
	o, _ = e.GrantExperience(o.Player, 100)
	got = questIDs(AvailableQuests(o.Player, cat))
	want := []string{"tracks", "lore", "echo"}
	if len(got) != len(want) {
		t.Fatalf("available=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("available=%v want %v", got, want)
		}
	}
}

func TestReachableZones(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	p := e.NewPlayer("w1")

	zs := ReachableZones(p, cat)
	if len(zs.Unlocked) != 1 || zs.Unlocked[0].ID != "glade" || len(zs.Reachable) != 0 {
		t.Fatalf("zones=%+v", zs)
	}
	o, _ := e.AssignTrait(p, "explorer")
	zs = ReachableZones(o.Player, cat)
	if len(zs.Reachable) != 1 || zs.Reachable[0].ID != "cave" {
		t.Fatalf("reachable=%+v", zs.Reachable)
	}
	o, _ = e.GrantExperience(o.Player, 400)
	zs = ReachableZones(o.Player, cat)
	if len(zs.Reachable) != 2 || zs.Reachable[1].ID != "peak" {
		t.Fatalf("reachable=%+v", zs.Reachable)
	}
}

func TestEvaluateAchievements_UnlocksInSamePass(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	p := e.NewPlayer("w1")

	st := EvaluateAchievements(p, cat)
	if st[0].Unlocked || st[0].Progress != 0 {
		t.Fatalf("fresh player: %+v", st[0])
	}

	o, err := e.CompleteQuest(p, "intro", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	st = EvaluateAchievements(o.Player, cat)
	if !st[0].Unlocked || st[0].Progress != 1 {
		t.Fatalf("first_blood after one quest: %+v", st[0])
	}
	newly := NewlyUnlocked(st)
	if len(newly) != 1 || newly[0].Achievement.ID != "first_blood" {
		t.Fatalf("newly=%+v", newly)
	}
}

func TestEvaluateAchievements_ConjunctionNotAverage(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	o, _ := e.AssignTrait(e.NewPlayer("w1"), "explorer")
	o, _ = e.UnlockZone(o.Player, "cave")

	w := EvaluateAchievements(o.Player, cat)[1]
	if w.Unlocked {
		t.Fatalf("wanderer unlocked with 2/3 zones")
	}
	// (2/3 + 1) / 2
	if w.Progress < 0.83 || w.Progress > 0.84 {
		t.Fatalf("progress=%v", w.Progress)
	}
	if !w.Requirements[1].Met || w.Requirements[0].Met {
		t.Fatalf("requirements=%+v", w.Requirements)
	}

	o, _ = e.UnlockZone(o.Player, "peak")
	o, _ = e.UnlockZone(o.Player, "peak")
	w = EvaluateAchievements(o.Player, cat)[1]
	if !w.Unlocked || w.Progress != 1 {
		t.Fatalf("wanderer=%+v", w)
	}
}

func TestEvaluateAchievements_ClaimedNotNewlyUnlocked(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	o, _ := e.CompleteQuest(e.NewPlayer("w1"), "intro", "")
	o, err := e.ClaimAchievement(o.Player, "first_blood")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	st := EvaluateAchievements(o.Player, cat)
	if !st[0].Claimed || len(NewlyUnlocked(st)) != 0 {
		t.Fatalf("statuses=%+v", st)
	}
}

func TestQuestState(t *testing.T) {
	cat := testCatalog(t)
	e := progression.NewEngine(cat)
	p := e.NewPlayer("w1")
	if s := QuestState(p, cat, "tracks", false); s != QuestLocked {
		t.Fatalf("tracks=%s", s)
	}
	if s := QuestState(p, cat, "intro", false); s != QuestAvailable {
		t.Fatalf("intro=%s", s)
	}
	if s := QuestState(p, cat, "intro", true); s != QuestActive {
		t.Fatalf("intro active=%s", s)
	}
	o, _ := e.CompleteQuest(p, "intro", "")
	if s := QuestState(o.Player, cat, "intro", true); s != QuestCompleted {
		t.Fatalf("intro done=%s", s)
	}
}
