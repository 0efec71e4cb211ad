package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrMalformed marks a payload that is not a JSON object.
	ErrMalformed = errors.New("malformed event payload")
	// ErrMissingType marks an object without a string "type" field.
	ErrMissingType = errors.New("event type missing")
	// ErrUnknownType marks a type outside the closed event set.
	ErrUnknownType = errors.New("unknown event type")
)

type decoder func([]byte) (Event, error)

var decoders = map[Type]decoder{
	TypeNarratorStart:  decodeAs[NarratorStart],
	TypeNarratorChunk:  decodeAs[NarratorChunk],
	TypeNarratorEnd:    decodeAs[NarratorEnd],
	TypeCharacterStart: decodeAs[CharacterStart],
	TypeCharacterChunk: decodeAs[CharacterChunk],
	TypeCharacterEnd:   decodeAs[CharacterEnd],
	TypeDialogueLine:   decodeAs[DialogueLine],
	TypeCharacterLine:  decodeAs[CharacterLine],
	TypeToolCall:       decodeAs[ToolCall],
	TypeToolTrace:      decodeAs[ToolTrace],
	TypeDiceResult:     decodeAs[DiceResult],
	TypeTurnComplete:   decodeAs[TurnComplete],
	TypeTurnError:      decodeAs[TurnError],
}

// Decode parses one record payload into its concrete event.
func Decode(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, ErrMalformed
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, ErrMalformed
	}
	typ := root.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return nil, ErrMissingType
	}
	decode, ok := decoders[Type(typ.Str)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ.Str)
	}
	return decode(payload)
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, evt.Type(), err)
	}
	return evt, nil
}

// Encode renders evt as a wire payload including its type discriminator.
func Encode(evt Event) ([]byte, error) {
	if evt == nil {
		return nil, errors.New("event is required")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.Type(), err)
	}
	return sjson.SetBytes(data, "type", string(evt.Type()))
}
