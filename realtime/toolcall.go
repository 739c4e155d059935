package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AltairaLabs/RealtimeKit/logger"
)

// emptyArgs is substituted when a call carries no arguments.
var emptyArgs = json.RawMessage(`{}`)

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// DecodeArgs unmarshals the call's arguments into v.
func (f FunctionCall) DecodeArgs(v any) error {
	if err := json.Unmarshal(f.Args, v); err != nil {
		return fmt.Errorf("decode args for %s: %w", f.Name, err)
	}
	return nil
}

// ToolCall is the normalized form of an inbound toolCall payload.
//
// The server sends either a single {name, args} object or a batch under
// functionCalls. Both decode into FunctionCalls, in payload order.
type ToolCall struct {
	FunctionCalls []FunctionCall
}

// UnmarshalJSON accepts both payload shapes.
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		FunctionCalls []FunctionCall  `json:"functionCalls"`
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		Args          json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var calls []FunctionCall
	if raw.FunctionCalls != nil {
		calls = raw.FunctionCalls
	} else if raw.Name != "" {
		calls = []FunctionCall{{ID: raw.ID, Name: raw.Name, Args: raw.Args}}
	}

	t.FunctionCalls = t.FunctionCalls[:0]
	for i, c := range calls {
		if c.Name == "" {
			logger.Warn("skipping tool call without name", "index", i)
			continue
		}
		if len(c.Args) == 0 || bytes.Equal(c.Args, []byte("null")) {
			c.Args = emptyArgs
		}
		t.FunctionCalls = append(t.FunctionCalls, c)
	}
	return nil
}

// MarshalJSON writes the batched form.
func (t ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FunctionCalls []FunctionCall `json:"functionCalls"`
	}{t.FunctionCalls})
}
