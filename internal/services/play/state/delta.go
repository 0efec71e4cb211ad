package state

// Delta is a partial state update carried by a completed turn.
//
// Absent fields leave the snapshot unchanged. For scalar and list fields an
// explicit null clears the value. Object-shaped fields (location, game time,
// chapter, party, dispositions, hit points, xp) treat null as absent; the
// party is cleared only through has_party=false.
type Delta struct {
	Location            Optional[Location]               `json:"location,omitzero"`
	SubLocation         Optional[string]                 `json:"sub_location,omitzero"`
	GameTime            Optional[GameTime]               `json:"game_time,omitzero"`
	ActiveDialogueNPC   Optional[string]                 `json:"active_dialogue_npc,omitzero"`
	CombatID            Optional[string]                 `json:"combat_id,omitzero"`
	HasParty            Optional[bool]                   `json:"has_party,omitzero"`
	Party               Optional[[]PartyMember]          `json:"party,omitzero"`
	AvailableActions    Optional[[]string]               `json:"available_actions,omitzero"`
	Chapter             Optional[Chapter]                `json:"chapter,omitzero"`
	StoryEvents         Optional[[]string]               `json:"story_events,omitzero"`
	StoryEventTriggered Optional[string]                 `json:"story_event_triggered,omitzero"`
	Dispositions        Optional[map[string]Disposition] `json:"dispositions,omitzero"`
	Inventory           Optional[[]InventoryItem]        `json:"inventory,omitzero"`
	PlayerHP            Optional[HitPoints]              `json:"player_hp,omitzero"`
	XP                  Optional[XP]                     `json:"xp,omitzero"`
}

// IsEmpty reports whether the delta carries no fields at all.
func (d Delta) IsEmpty() bool {
	return !d.Location.Set && !d.SubLocation.Set && !d.GameTime.Set &&
		!d.ActiveDialogueNPC.Set && !d.CombatID.Set && !d.HasParty.Set &&
		!d.Party.Set && !d.AvailableActions.Set && !d.Chapter.Set &&
		!d.StoryEvents.Set && !d.StoryEventTriggered.Set && !d.Dispositions.Set &&
		!d.Inventory.Set && !d.PlayerHP.Set && !d.XP.Set
}

// apply folds d into s in place. s must be a private copy.
func (d Delta) apply(s *Snapshot) {
	if loc, ok := d.Location.Get(); ok {
		s.Location = &loc
	}
	if d.SubLocation.Set {
		s.SubLocation = d.SubLocation.Value
	}
	if gt, ok := d.GameTime.Get(); ok {
		s.GameTime = &gt
	}
	if d.ActiveDialogueNPC.Set {
		s.ActiveDialogueNPC = d.ActiveDialogueNPC.Value
	}
	if d.CombatID.Set {
		s.CombatID = d.CombatID.Value
	}
	if party, ok := d.Party.Get(); ok {
		s.Party = mergeParty(s.Party, party)
	}
	if hasParty, ok := d.HasParty.Get(); ok && !hasParty {
		s.Party = nil
	}
	if d.AvailableActions.Set {
		s.AvailableActions = cloneSlice(d.AvailableActions.Value)
	}
	if ch, ok := d.Chapter.Get(); ok {
		s.Chapter = &ch
	}
	d.applyStoryEvents(s)
	if dispositions, ok := d.Dispositions.Get(); ok {
		s.Dispositions = make(map[string]Disposition, len(dispositions))
		for id, disp := range dispositions {
			s.Dispositions[id] = disp
		}
	}
	if d.Inventory.Set {
		s.Inventory = cloneSlice(d.Inventory.Value)
	}
	if hp, ok := d.PlayerHP.Get(); ok {
		s.PlayerHP = HitPoints{Current: cloneRef(hp.Current), Max: cloneRef(hp.Max)}
	}
	if xp, ok := d.XP.Get(); ok {
		s.XP = XP{
			Gained:    cloneRef(xp.Gained),
			NewTotal:  cloneRef(xp.NewTotal),
			NewLevel:  cloneRef(xp.NewLevel),
			LeveledUp: cloneRef(xp.LeveledUp),
		}
	}
}

// applyStoryEvents replaces the log when a full list is present; otherwise a
// triggered marker is appended once.
func (d Delta) applyStoryEvents(s *Snapshot) {
	if d.StoryEvents.Set {
		s.StoryEvents = cloneSlice(d.StoryEvents.Value)
		s.LatestStoryEvent = ""
		if n := len(s.StoryEvents); n > 0 {
			s.LatestStoryEvent = s.StoryEvents[n-1]
		}
		return
	}
	marker, ok := d.StoryEventTriggered.Get()
	if !ok || marker == "" {
		return
	}
	s.LatestStoryEvent = marker
	for _, existing := range s.StoryEvents {
		if existing == marker {
			return
		}
	}
	s.StoryEvents = append(s.StoryEvents, marker)
}

// mergeParty matches incoming members to previous ones by position and keeps
// previous descriptive fields where the incoming entry leaves them empty.
func mergeParty(prev, incoming []PartyMember) []PartyMember {
	out := make([]PartyMember, len(incoming))
	for i, member := range incoming {
		if i < len(prev) {
			old := prev[i]
			if member.Name == "" {
				member.Name = old.Name
			}
			if member.Role == "" {
				member.Role = old.Role
			}
			if member.Personality == "" {
				member.Personality = old.Personality
			}
			if member.Mood == "" {
				member.Mood = old.Mood
			}
		}
		out[i] = member
	}
	return out
}
