// Package logwriter implements the Log Writer (C2): couples a Log Channel
// to durable storage, persisting every message before making it visible to
// live subscribers.
package logwriter

import "encoding/json"

// Kind discriminates the LogMsg sum type (spec.md §3).
type Kind string

const (
	KindStdout     Kind = "Stdout"
	KindStderr     Kind = "Stderr"
	KindSessionID  Kind = "SessionId"
	KindNormalized Kind = "Normalized"
	KindFinished   Kind = "Finished"
)

// NormalizedEntry is structured agent output parsed from raw stdio.
type NormalizedEntry struct {
	Kind       string `json:"kind"` // "ToolCall", "ToolResult", "Thinking", "Assistant", "System"
	Name       string `json:"name,omitempty"`       // ToolCall
	Input      string `json:"input,omitempty"`      // ToolCall, raw JSON
	CallID     string `json:"call_id,omitempty"`    // ToolResult
	Output     string `json:"output,omitempty"`     // ToolResult
	Status     string `json:"status,omitempty"`     // ToolResult
	Text       string `json:"text,omitempty"`       // Thinking, Assistant, System
}

// Msg is one LogMsg value: a tagged union serialized as a single JSON line
// on the wire (spec.md §6 log file format). At most one of the payload
// fields is populated per Kind; Finished carries none.
type Msg struct {
	Kind       Kind             `json:"type"`
	Content    string           `json:"content,omitempty"` // Stdout, Stderr, SessionId
	Entry      *NormalizedEntry `json:"entry,omitempty"`   // Normalized
}

func Stdout(s string) Msg    { return Msg{Kind: KindStdout, Content: s} }
func Stderr(s string) Msg    { return Msg{Kind: KindStderr, Content: s} }
func SessionID(s string) Msg { return Msg{Kind: KindSessionID, Content: s} }
func Normalized(e NormalizedEntry) Msg {
	return Msg{Kind: KindNormalized, Entry: &e}
}
func Finished() Msg { return Msg{Kind: KindFinished} }

// MarshalLine serializes msg as one JSON-line-format row, matching
// spec.md §6 exactly ({"type":"Stdout","content":"..."} etc).
func MarshalLine(m Msg) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// UnmarshalLine parses one JSON-line-format row back into a Msg.
func UnmarshalLine(line string) (Msg, error) {
	var m Msg
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return Msg{}, err
	}
	return m, nil
}
