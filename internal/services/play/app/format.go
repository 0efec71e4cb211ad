package app

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/mapgraph"
	"github.com/louisbranch/storyloom/internal/services/play/overlay"
	"github.com/louisbranch/storyloom/internal/services/play/protocol"
	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// FormatSnapshot renders the session state for the console.
func FormatSnapshot(s *state.Snapshot) string {
	if s == nil {
		return "no state\n"
	}
	var b strings.Builder
	if s.Location != nil {
		fmt.Fprintf(&b, "location: %s", displayName(s.Location.Name, s.Location.ID))
		if s.SubLocation != "" {
			fmt.Fprintf(&b, " (%s)", s.SubLocation)
		}
		b.WriteString("\n")
	}
	if s.GameTime != nil {
		fmt.Fprintf(&b, "time: day %d %02d:%02d", s.GameTime.Day, s.GameTime.Hour, s.GameTime.Minute)
		if s.GameTime.Period != "" {
			fmt.Fprintf(&b, " %s", s.GameTime.Period)
		}
		b.WriteString("\n")
	}
	if s.Chapter != nil {
		fmt.Fprintf(&b, "chapter: %s %d%%\n", displayName(s.Chapter.Title, s.Chapter.ID), s.Chapter.Progress)
	}
	if s.InCombat() {
		fmt.Fprintf(&b, "combat: %s\n", s.CombatID)
	}
	if s.ActiveDialogueNPC != "" {
		fmt.Fprintf(&b, "talking to: %s\n", s.ActiveDialogueNPC)
	}
	if s.PlayerHP.Current != nil {
		fmt.Fprintf(&b, "hp: %d", *s.PlayerHP.Current)
		if s.PlayerHP.Max != nil {
			fmt.Fprintf(&b, "/%d", *s.PlayerHP.Max)
		}
		b.WriteString("\n")
	}
	if s.XP.NewTotal != nil {
		fmt.Fprintf(&b, "xp: %d", *s.XP.NewTotal)
		if s.XP.NewLevel != nil {
			fmt.Fprintf(&b, " level %d", *s.XP.NewLevel)
		}
		b.WriteString("\n")
	}
	for _, m := range s.Party {
		marker := " "
		if m.IsActive {
			marker = "*"
		}
		fmt.Fprintf(&b, "party %s %s", marker, displayName(m.Name, m.CharacterID))
		if m.Mood != "" {
			fmt.Fprintf(&b, " [%s]", m.Mood)
		}
		b.WriteString("\n")
	}
	ids := make([]string, 0, len(s.Dispositions))
	for id := range s.Dispositions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		d := s.Dispositions[id]
		fmt.Fprintf(&b, "disposition %s: approval %d trust %d fear %d romance %d\n", id, d.Approval, d.Trust, d.Fear, d.Romance)
	}
	for _, item := range s.Inventory {
		fmt.Fprintf(&b, "item %s x%d\n", displayName(item.Name, item.ID), item.Quantity)
	}
	if len(s.AvailableActions) > 0 {
		fmt.Fprintf(&b, "actions: %s\n", strings.Join(s.AvailableActions, ", "))
	}
	if s.LatestStoryEvent != "" {
		fmt.Fprintf(&b, "latest event: %s\n", s.LatestStoryEvent)
	}
	if b.Len() == 0 {
		return "no state\n"
	}
	return b.String()
}

// FormatMap renders known locations, current first.
func FormatMap(g mapgraph.Graph) string {
	nodes := g.SortedNodes()
	if len(nodes) == 0 {
		return "no known locations\n"
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].IsCurrent && !nodes[j].IsCurrent })

	var b strings.Builder
	for _, n := range nodes {
		var flags []string
		switch {
		case n.IsCurrent:
			flags = append(flags, "here")
		case n.IsReachableFromCurrent:
			flags = append(flags, "reachable")
		}
		if !n.IsUnlocked {
			flags = append(flags, "locked")
		}
		if n.DangerLevel != "" {
			flags = append(flags, "danger "+n.DangerLevel)
		}
		fmt.Fprintf(&b, "%s", displayName(n.Name, n.ID))
		if len(flags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
		}
		b.WriteString("\n")
	}
	for _, e := range g.SortedEdges() {
		if !e.IsActive {
			continue
		}
		label := e.TravelLabel
		if label == "" {
			label = "path"
		}
		fmt.Fprintf(&b, "  %s -> %s: %s\n", e.From, e.To, label)
	}
	return b.String()
}

// FormatLedger renders tool activity.
func FormatLedger(entries []overlay.Entry) string {
	if len(entries) == 0 {
		return "no tool activity\n"
	}
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case overlay.EntryCall:
			fmt.Fprintf(&b, "call %s %s\n", e.Tool, string(e.Arguments))
		default:
			fmt.Fprintf(&b, "trace %s %s (%s)\n", e.Tool, e.Message, e.Duration)
		}
	}
	return b.String()
}

// FormatSessions renders a session list, marking the live one.
func FormatSessions(sessions []gateway.SessionSummary, live guard.SessionKey) string {
	if len(sessions) == 0 {
		return "no sessions\n"
	}
	var b strings.Builder
	for _, s := range sessions {
		marker := " "
		if s.Key() == live {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s %s [%s]\n", marker, s.ID, displayName(s.Title, "untitled"), s.Status)
	}
	return b.String()
}

// FormatRoll renders a dice result.
func FormatRoll(r protocol.DiceResult) string {
	rolls := make([]string, len(r.Rolls))
	for i, v := range r.Rolls {
		rolls[i] = strconv.Itoa(v)
	}
	var b strings.Builder
	if r.Label != "" {
		fmt.Fprintf(&b, "%s: ", r.Label)
	}
	fmt.Fprintf(&b, "%s [%s]", r.Notation, strings.Join(rolls, " "))
	if r.Modifier != 0 {
		fmt.Fprintf(&b, " %+d", r.Modifier)
	}
	fmt.Fprintf(&b, " = %d", r.Total)
	if r.Difficulty != nil {
		fmt.Fprintf(&b, " vs %d", *r.Difficulty)
	}
	if r.Success != nil {
		if *r.Success {
			b.WriteString(" success")
		} else {
			b.WriteString(" failure")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func displayName(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
