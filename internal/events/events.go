// Package events implements the Event Envelope: the tagged union of frames
// the executor emits, and their serialization as server-sent-events records.
package events

import (
	"encoding/json"
	"fmt"
	"io"
)

// Kind enumerates the frame tags. Serialization is a pure function of Kind.
type Kind string

const (
	KindStatus  Kind = "status"
	KindThink   Kind = "think"
	KindMessage Kind = "message"
	KindTool    Kind = "tool"
	KindWallet  Kind = "wallet"
	KindFinish  Kind = "finish"
	KindError   Kind = "error"
)

// Frame is one emitted event. Payload is marshaled as the SSE "data" field;
// Tool carries a tool-declared sub-kind for KindTool frames so callers can
// dispatch on e.g. "wallet" or "token_analysis"; Wallet frames leave it empty.
type Frame struct {
	Kind    Kind `json:"-"`
	Tool    string
	Payload any
}

func Status(message string, tool string) Frame {
	return Frame{Kind: KindStatus, Payload: map[string]any{"message": message, "tool": tool}}
}

func Think(text string) Frame {
	return Frame{Kind: KindThink, Payload: map[string]any{"text": text}}
}

func Message(text string) Frame {
	return Frame{Kind: KindMessage, Payload: map[string]any{"type": "markdown", "text": text}}
}

func ToolFrame(toolKind string, data any) Frame {
	return Frame{Kind: KindTool, Tool: toolKind, Payload: map[string]any{"type": toolKind, "data": data}}
}

func Wallet(data any) Frame {
	return Frame{Kind: KindWallet, Payload: data}
}

func ErrorFrame(message string) Frame {
	return Frame{Kind: KindError, Payload: map[string]any{"message": message}}
}

// Finish is the terminator frame: a "message" event carrying the final
// markdown text, or a sentinel with empty text when nothing was produced.
// Both forms carry "final": true.
func Finish(text string) Frame {
	if text == "" {
		return Frame{Kind: KindMessage, Payload: map[string]any{"type": "markdown", "text": "", "final": true}}
	}
	return Frame{Kind: KindMessage, Payload: map[string]any{"type": "markdown", "text": text, "final": true}}
}

// WriteSSE serializes a frame as "event: <kind>\ndata: <json>\n\n" and writes
// it to w, flushing via flush if non-nil. Grounded on the writeSSE closures in
// the dialogue handler: one mutex-guarded writer shared across callback
// goroutines, flushed after every frame so the client sees it immediately.
func WriteSSE(w io.Writer, flush func(), f Frame) error {
	b, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Kind, b); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}
