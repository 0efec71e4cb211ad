package protocol

import (
	"encoding/json"

	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// Type is the wire discriminator of an event.
type Type string

const (
	TypeNarratorStart  Type = "narrator_start"
	TypeNarratorChunk  Type = "narrator_chunk"
	TypeNarratorEnd    Type = "narrator_end"
	TypeCharacterStart Type = "character_start"
	TypeCharacterChunk Type = "character_chunk"
	TypeCharacterEnd   Type = "character_end"
	TypeDialogueLine   Type = "dialogue_line"
	TypeCharacterLine  Type = "character_line"
	TypeToolCall       Type = "tool_call"
	TypeToolTrace      Type = "tool_trace"
	TypeDiceResult     Type = "dice_result"
	TypeTurnComplete   Type = "turn_complete"
	TypeTurnError      Type = "turn_error"
)

// Event is one decoded stream record. The implementations in this package
// are the complete set.
type Event interface {
	Type() Type
	isEvent()
}

// ChunkKind labels a narrator chunk. Only answer text is shown to the player.
type ChunkKind string

const (
	ChunkAnswer    ChunkKind = "answer"
	ChunkThinking  ChunkKind = "thinking"
	ChunkReasoning ChunkKind = "reasoning"
	ChunkPlan      ChunkKind = "plan"
)

// NarratorStart opens the turn's narration.
type NarratorStart struct{}

// NarratorChunk is a piece of narration text.
type NarratorChunk struct {
	Text string    `json:"text"`
	Kind ChunkKind `json:"kind,omitempty"`
}

// Visible reports whether the chunk belongs in the transcript. Unlabelled
// chunks are answer text.
func (c NarratorChunk) Visible() bool {
	return c.Kind == "" || c.Kind == ChunkAnswer
}

// NarratorEnd closes the narration. FullText, when set, overrides the
// concatenated chunks.
type NarratorEnd struct {
	FullText *string `json:"full_text,omitempty"`
}

// CharacterStart opens a character's reply stream.
type CharacterStart struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
}

// CharacterChunk is a piece of a character's reply.
type CharacterChunk struct {
	CharacterID string `json:"character_id"`
	Text        string `json:"text"`
}

// CharacterEnd closes a character's reply stream.
type CharacterEnd struct {
	CharacterID string  `json:"character_id"`
	FullText    *string `json:"full_text,omitempty"`
}

// DialogueLine is a complete, non-streamed line of dialogue.
type DialogueLine struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
	Text        string `json:"text"`
}

// CharacterLine is a complete, non-streamed character reply.
type CharacterLine struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
	Text        string `json:"text"`
}

// DispositionChange is a relationship shift reported alongside a tool call.
type DispositionChange struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
	Approval    int    `json:"approval"`
	Trust       int    `json:"trust"`
	Fear        int    `json:"fear"`
	Romance     int    `json:"romance"`
}

// ToolCall is diagnostic metadata about a backend tool invocation.
type ToolCall struct {
	Tool              string             `json:"tool"`
	Arguments         json.RawMessage    `json:"arguments,omitempty"`
	DispositionChange *DispositionChange `json:"disposition_change,omitempty"`
}

// ToolTrace is a diagnostic trace line from a backend tool.
type ToolTrace struct {
	Tool       string `json:"tool,omitempty"`
	Message    string `json:"message"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// DiceResult is a roll that happened during the turn.
type DiceResult struct {
	Label      string `json:"label,omitempty"`
	Notation   string `json:"notation"`
	Rolls      []int  `json:"rolls"`
	Modifier   int    `json:"modifier"`
	Total      int    `json:"total"`
	Difficulty *int   `json:"difficulty,omitempty"`
	Success    *bool  `json:"success,omitempty"`
}

// InlineResponse is a character reply embedded in turn_complete.
type InlineResponse struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name,omitempty"`
	Text        string `json:"text"`
}

// TurnComplete ends the turn successfully.
type TurnComplete struct {
	Narration            string           `json:"narration,omitempty"`
	Responses            []InlineResponse `json:"responses,omitempty"`
	Delta                state.Delta      `json:"state_delta"`
	AvailableLocationIDs *[]string        `json:"available_location_ids,omitempty"`
	AllUnlocked          bool             `json:"all_unlocked,omitempty"`
}

// TurnError ends the turn with a backend-reported failure.
type TurnError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (NarratorStart) Type() Type  { return TypeNarratorStart }
func (NarratorChunk) Type() Type  { return TypeNarratorChunk }
func (NarratorEnd) Type() Type    { return TypeNarratorEnd }
func (CharacterStart) Type() Type { return TypeCharacterStart }
func (CharacterChunk) Type() Type { return TypeCharacterChunk }
func (CharacterEnd) Type() Type   { return TypeCharacterEnd }
func (DialogueLine) Type() Type   { return TypeDialogueLine }
func (CharacterLine) Type() Type  { return TypeCharacterLine }
func (ToolCall) Type() Type       { return TypeToolCall }
func (ToolTrace) Type() Type      { return TypeToolTrace }
func (DiceResult) Type() Type     { return TypeDiceResult }
func (TurnComplete) Type() Type   { return TypeTurnComplete }
func (TurnError) Type() Type      { return TypeTurnError }

func (NarratorStart) isEvent()  {}
func (NarratorChunk) isEvent()  {}
func (NarratorEnd) isEvent()    {}
func (CharacterStart) isEvent() {}
func (CharacterChunk) isEvent() {}
func (CharacterEnd) isEvent()   {}
func (DialogueLine) isEvent()   {}
func (CharacterLine) isEvent()  {}
func (ToolCall) isEvent()       {}
func (ToolTrace) isEvent()      {}
func (DiceResult) isEvent()     {}
func (TurnComplete) isEvent()   {}
func (TurnError) isEvent()      {}
