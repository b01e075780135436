// Package ledger keeps bounded, in-memory diagnostic logs: one for tool
// calls and one for raw provider request/response pairs. Nothing in the
// control flow reads them back.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"mcpdesk/config"
)

const (
	CallLogCapacity   = 100
	RawAPILogCapacity = 50
	MaxFieldLength    = 10000
	TruncatedSuffix   = "... [truncated]"
)

type Kind string

const (
	KindToolInvoke   Kind = "tool_invoke"
	KindToolComplete Kind = "tool_complete"
	KindAPIRequest   Kind = "api_request"
)

type Entry struct {
	ID        uint64    `json:"id"`
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"` // tool server or provider id
	Name      string    `json:"name"`   // tool or model name
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
}

type Ledger struct {
	calls *Ring[Entry]
	raw   *Ring[Entry]
	seq   atomic.Uint64
}

func New() *Ledger {
	return NewWithCapacity(CallLogCapacity, RawAPILogCapacity)
}

func NewWithCapacity(calls, raw int) *Ledger {
	return &Ledger{
		calls: NewRing[Entry](calls),
		raw:   NewRing[Entry](raw),
	}
}

// Record appends one entry. Tool kinds go to the call log, API kinds to the
// raw API log. Failures while encoding payloads are swallowed.
func (l *Ledger) Record(kind Kind, source, name string, input, output any, err error) {
	if l == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			config.DebugLog.Printf("[Ledger] dropped %s entry for %s/%s: %v", kind, source, name, r)
		}
	}()

	entry := Entry{
		ID:     l.seq.Add(1),
		Time:   time.Now(),
		Kind:   kind,
		Source: source,
		Name:   name,
	}
	var cut bool
	entry.Input, cut = stringify(input)
	entry.Truncated = entry.Truncated || cut
	entry.Output, cut = stringify(output)
	entry.Truncated = entry.Truncated || cut
	if err != nil {
		entry.Error, cut = Truncate(err.Error())
		entry.Truncated = entry.Truncated || cut
	}

	if kind == KindAPIRequest {
		l.raw.Push(entry)
		return
	}
	l.calls.Push(entry)
}

// RecordRaw implements model.RawRecorder.
func (l *Ledger) RecordRaw(provider, name string, request, response any, err error) {
	l.Record(KindAPIRequest, provider, name, request, response, err)
}

// Calls returns the tool call log newest first.
func (l *Ledger) Calls() []Entry {
	return l.calls.Newest()
}

// RawAPI returns the raw provider log newest first.
func (l *Ledger) RawAPI() []Entry {
	return l.raw.Newest()
}

// List returns the log that holds kind, newest first.
func (l *Ledger) List(kind Kind) []Entry {
	if kind == KindAPIRequest {
		return l.RawAPI()
	}
	return l.Calls()
}

func (l *Ledger) Clear() {
	l.calls.Clear()
	l.raw.Clear()
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return Truncate(val)
	case []byte:
		return Truncate(string(val))
	case json.RawMessage:
		return Truncate(string(val))
	case error:
		return Truncate(val.Error())
	case fmt.Stringer:
		return Truncate(val.String())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Truncate(fmt.Sprintf("%+v", v))
	}
	return Truncate(string(data))
}

// Truncate caps s at MaxFieldLength characters, marking the cut.
func Truncate(s string) (string, bool) {
	if len(s) <= MaxFieldLength || utf8.RuneCountInString(s) <= MaxFieldLength {
		return s, false
	}
	count := 0
	for i := range s {
		if count == MaxFieldLength {
			return s[:i] + TruncatedSuffix, true
		}
		count++
	}
	return s, false
}
