package state

import (
	"encoding/json"
	"testing"
)

func decodeDelta(t *testing.T, raw string) Delta {
	t.Helper()
	var d Delta
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	return d
}

func intRef(v int) *int { return &v }

func TestOptionalDistinguishesAbsentNullAndValue(t *testing.T) {
	d := decodeDelta(t, `{"sub_location":null,"combat_id":"fight-1"}`)

	if d.ActiveDialogueNPC.Set {
		t.Fatal("absent field should not be set")
	}
	if !d.SubLocation.Set || !d.SubLocation.Null {
		t.Fatalf("sub_location = %+v, want explicit null", d.SubLocation)
	}
	if v, ok := d.CombatID.Get(); !ok || v != "fight-1" {
		t.Fatalf("combat_id = %+v, want fight-1", d.CombatID)
	}
}

func TestOptionalOmitsUnsetFieldsWhenEncoding(t *testing.T) {
	d := Delta{SubLocation: Null[string](), CombatID: Some("c")}
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `{"sub_location":null,"combat_id":"c"}`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestApplyDeltaAbsentFieldsUnchanged(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"sub_location":"cellar","combat_id":"c1","available_actions":["look"]}`))
	r.ApplyDelta(decodeDelta(t, `{"game_time":{"day":2,"hour":9,"minute":0,"period":"morning"}}`))

	s := r.Snapshot()
	if s.SubLocation != "cellar" || s.CombatID != "c1" || len(s.AvailableActions) != 1 {
		t.Fatalf("unrelated fields changed: %+v", s)
	}
	if s.GameTime == nil || s.GameTime.Day != 2 {
		t.Fatalf("game time = %+v", s.GameTime)
	}
}

func TestApplyDeltaNullClearsScalarsAndLists(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"sub_location":"cellar","active_dialogue_npc":"npc-1","combat_id":"c1","inventory":[{"id":"i","name":"rope","quantity":1}]}`))
	r.ApplyDelta(decodeDelta(t, `{"sub_location":null,"active_dialogue_npc":null,"combat_id":null,"inventory":null}`))

	s := r.Snapshot()
	if s.SubLocation != "" || s.ActiveDialogueNPC != "" || s.CombatID != "" || s.Inventory != nil {
		t.Fatalf("expected cleared fields, got %+v", s)
	}
	if s.InCombat() {
		t.Fatal("expected combat to end")
	}
}

func TestApplyDeltaNullLeavesObjectFields(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"location":{"id":"inn","name":"Inn"},"chapter":{"id":"c1","title":"Arrival","progress":10}}`))
	r.ApplyDelta(decodeDelta(t, `{"location":null,"chapter":null,"player_hp":null}`))

	s := r.Snapshot()
	if s.Location == nil || s.Location.ID != "inn" {
		t.Fatalf("location = %+v, want inn", s.Location)
	}
	if s.Chapter == nil || s.Chapter.Title != "Arrival" {
		t.Fatalf("chapter = %+v", s.Chapter)
	}
}

func TestPartyPositionalMerge(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"party":[
		{"character_id":"a","name":"Ayla","role":"scout","personality":"wry","mood":"calm","is_active":true},
		{"character_id":"b","name":"Bram","role":"cleric","personality":"stern","mood":"tired"}]}`))
	r.ApplyDelta(decodeDelta(t, `{"party":[{"character_id":"a","mood":"angry","is_active":false},{"character_id":"b"},{"character_id":"c","name":"Cor"}]}`))

	party := r.Snapshot().Party
	if len(party) != 3 {
		t.Fatalf("party size = %d, want 3", len(party))
	}
	if party[0].Name != "Ayla" || party[0].Role != "scout" || party[0].Mood != "angry" || party[0].IsActive {
		t.Fatalf("party[0] = %+v", party[0])
	}
	if party[1].Name != "Bram" || party[1].Personality != "stern" || party[1].Mood != "tired" {
		t.Fatalf("party[1] = %+v", party[1])
	}
	if party[2].Name != "Cor" || party[2].Role != "" {
		t.Fatalf("party[2] = %+v", party[2])
	}
}

func TestHasPartyFalseClearsParty(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"party":[{"character_id":"a","name":"Ayla"}]}`))
	r.ApplyDelta(decodeDelta(t, `{"has_party":true}`))
	if len(r.Snapshot().Party) != 1 {
		t.Fatal("has_party=true should not touch the party")
	}
	r.ApplyDelta(decodeDelta(t, `{"has_party":false}`))
	if r.Snapshot().Party != nil {
		t.Fatalf("party = %+v, want cleared", r.Snapshot().Party)
	}
}

func TestHitPointsAndXPReplacedWholesale(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"player_hp":{"current":12,"max":20},"xp":{"gained":50,"new_total":100,"leveled_up":true}}`))
	r.ApplyDelta(decodeDelta(t, `{"player_hp":{"current":7},"xp":{"gained":10}}`))

	s := r.Snapshot()
	if s.PlayerHP.Current == nil || *s.PlayerHP.Current != 7 {
		t.Fatalf("hp.current = %v, want 7", s.PlayerHP.Current)
	}
	if s.PlayerHP.Max != nil {
		t.Fatalf("hp.max = %d, want absent", *s.PlayerHP.Max)
	}
	if s.XP.Gained == nil || *s.XP.Gained != 10 {
		t.Fatalf("xp.gained = %v, want 10", s.XP.Gained)
	}
	if s.XP.NewTotal != nil || s.XP.NewLevel != nil || s.XP.LeveledUp != nil {
		t.Fatalf("xp = %+v, want only gained", s.XP)
	}

	r.ApplyDelta(decodeDelta(t, `{"location":{"id":"camp"}}`))
	if s := r.Snapshot(); s.PlayerHP.Current == nil || *s.PlayerHP.Current != 7 {
		t.Fatal("expected absent player_hp to keep the prior value")
	}
}

func TestStoryEventsListReplacesAndMarkerAppendsOnce(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"story_events":["met_guide","found_map"]}`))
	if got := r.Snapshot().LatestStoryEvent; got != "found_map" {
		t.Fatalf("latest = %q, want found_map", got)
	}

	r.ApplyDelta(decodeDelta(t, `{"story_event_triggered":"crossed_bridge"}`))
	r.ApplyDelta(decodeDelta(t, `{"story_event_triggered":"crossed_bridge"}`))
	s := r.Snapshot()
	if len(s.StoryEvents) != 3 || s.StoryEvents[2] != "crossed_bridge" {
		t.Fatalf("events = %v", s.StoryEvents)
	}
	if s.LatestStoryEvent != "crossed_bridge" {
		t.Fatalf("latest = %q", s.LatestStoryEvent)
	}

	r.ApplyDelta(decodeDelta(t, `{"story_events":[],"story_event_triggered":"ignored"}`))
	s = r.Snapshot()
	if len(s.StoryEvents) != 0 || s.LatestStoryEvent != "" {
		t.Fatalf("full list should win over marker, got %v %q", s.StoryEvents, s.LatestStoryEvent)
	}
}

func TestDispositionsReplacedWholesale(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(decodeDelta(t, `{"dispositions":{"a":{"approval":5,"trust":2},"b":{"fear":3}}}`))
	r.ApplyDelta(decodeDelta(t, `{"dispositions":{"b":{"fear":1,"romance":4}}}`))

	d := r.Snapshot().Dispositions
	if _, ok := d["a"]; ok {
		t.Fatal("expected missing entry to be dropped")
	}
	if d["b"] != (Disposition{Fear: 1, Romance: 4}) {
		t.Fatalf("b = %+v", d["b"])
	}
}

func TestApplyDeltaDoesNotMutatePublishedSnapshot(t *testing.T) {
	r := NewReducer()
	r.ApplyDelta(Delta{
		Party:     Some([]PartyMember{{CharacterID: "a", Name: "Ayla"}}),
		PlayerHP:  Some(HitPoints{Current: intRef(10)}),
		Inventory: Some([]InventoryItem{{ID: "i", Name: "rope", Quantity: 1}}),
	})
	before := r.Snapshot()

	r.ApplyDelta(Delta{
		Party:    Some([]PartyMember{{CharacterID: "a", Mood: "glum"}}),
		PlayerHP: Some(HitPoints{Current: intRef(3)}),
	})

	if before.Party[0].Mood != "" || *before.PlayerHP.Current != 10 {
		t.Fatalf("published snapshot changed: %+v", before)
	}
	if r.Snapshot().Version != before.Version+1 {
		t.Fatalf("version = %d, want %d", r.Snapshot().Version, before.Version+1)
	}
}

func TestResetClearsStateAndKeepsVersionMonotonic(t *testing.T) {
	r := NewReducer()
	r.SetLocation(Location{ID: "inn"})
	v := r.Snapshot().Version

	s := r.Reset()
	if s.Location != nil {
		t.Fatal("expected reset to clear location")
	}
	if s.Version <= v {
		t.Fatalf("version = %d, want > %d", s.Version, v)
	}
}

func TestOneShotSetters(t *testing.T) {
	r := NewReducer()
	r.SetGameTime(GameTime{Day: 1, Hour: 6})
	r.SetParty(nil)
	r.SetChapter(Chapter{ID: "c", Title: "Prologue"})

	s := r.Snapshot()
	if s.GameTime.Hour != 6 || s.Chapter.Title != "Prologue" {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Party == nil || len(s.Party) != 0 {
		t.Fatalf("party = %#v, want empty roster", s.Party)
	}
}
