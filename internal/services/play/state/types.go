package state

// Location is a place the player occupies, with the exits visible from it.
type Location struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	DangerLevel  string        `json:"danger_level,omitempty"`
	Destinations []Destination `json:"destinations,omitempty"`
}

// Destination is an exit from a Location.
type Destination struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DangerLevel string `json:"danger_level,omitempty"`
	TravelLabel string `json:"travel_label,omitempty"`
}

// GameTime is the in-world clock.
type GameTime struct {
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Period string `json:"period,omitempty"`
}

// PartyMember is one companion travelling with the player.
type PartyMember struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	Personality string `json:"personality,omitempty"`
	Mood        string `json:"mood,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Chapter is the current story chapter.
type Chapter struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Progress int    `json:"progress"`
}

// Disposition is how a character feels about the player.
type Disposition struct {
	Approval int `json:"approval"`
	Trust    int `json:"trust"`
	Fear     int `json:"fear"`
	Romance  int `json:"romance"`
}

// InventoryItem is one stack in the player's inventory.
type InventoryItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// HitPoints is the player's health. Nil fields were not reported.
type HitPoints struct {
	Current *int `json:"current,omitempty"`
	Max     *int `json:"max,omitempty"`
}

// XP is the player's experience. Nil fields were not reported.
type XP struct {
	Gained    *int  `json:"gained,omitempty"`
	NewTotal  *int  `json:"new_total,omitempty"`
	NewLevel  *int  `json:"new_level,omitempty"`
	LeveledUp *bool `json:"leveled_up,omitempty"`
}

// Snapshot is the client's local view of the narrative world. Published
// snapshots must not be mutated; use Clone to derive a new one.
type Snapshot struct {
	Version           uint64
	Location          *Location
	SubLocation       string
	GameTime          *GameTime
	ActiveDialogueNPC string
	CombatID          string
	Party             []PartyMember
	AvailableActions  []string
	Chapter           *Chapter
	StoryEvents       []string
	LatestStoryEvent  string
	Dispositions      map[string]Disposition
	Inventory         []InventoryItem
	PlayerHP          HitPoints
	XP                XP
}

// InCombat reports whether a combat encounter is active.
func (s *Snapshot) InCombat() bool {
	return s != nil && s.CombatID != ""
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	out := *s
	if s.Location != nil {
		loc := *s.Location
		loc.Destinations = cloneSlice(s.Location.Destinations)
		out.Location = &loc
	}
	if s.GameTime != nil {
		gt := *s.GameTime
		out.GameTime = &gt
	}
	if s.Chapter != nil {
		ch := *s.Chapter
		out.Chapter = &ch
	}
	out.Party = cloneSlice(s.Party)
	out.AvailableActions = cloneSlice(s.AvailableActions)
	out.StoryEvents = cloneSlice(s.StoryEvents)
	out.Inventory = cloneSlice(s.Inventory)
	if s.Dispositions != nil {
		out.Dispositions = make(map[string]Disposition, len(s.Dispositions))
		for k, v := range s.Dispositions {
			out.Dispositions[k] = v
		}
	}
	out.PlayerHP = HitPoints{Current: cloneRef(s.PlayerHP.Current), Max: cloneRef(s.PlayerHP.Max)}
	out.XP = XP{
		Gained:    cloneRef(s.XP.Gained),
		NewTotal:  cloneRef(s.XP.NewTotal),
		NewLevel:  cloneRef(s.XP.NewLevel),
		LeveledUp: cloneRef(s.XP.LeveledUp),
	}
	return &out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}

func cloneRef[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
