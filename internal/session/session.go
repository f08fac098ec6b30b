// Package session keeps each user's question history.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/JonMunkholm/nlq/internal/chain"
)

// Entry is one submitted question and the record it produced.
type Entry struct {
	Question string       `json:"question"`
	Record   chain.Record `json:"record"`
}

// Invoker runs one question through the chain.
type Invoker interface {
	Invoke(ctx context.Context, question string) chain.Outcome
}

// Session is an append-only history. Ask holds the session lock for the whole
// invocation, so a session answers one question at a time.
type Session struct {
	ID string

	ask     sync.Mutex
	mu      sync.RWMutex
	entries []Entry
}

func New(id string) *Session {
	return &Session{ID: id}
}

// Ask runs question through inv and appends exactly one entry, a sentinel
// record when the invocation failed. The returned outcome carries the record
// that was appended. Blank questions are ignored and return ok=false.
func (s *Session) Ask(ctx context.Context, inv Invoker, question string) (chain.Outcome, bool) {
	if strings.TrimSpace(question) == "" {
		return chain.Outcome{}, false
	}

	s.ask.Lock()
	defer s.ask.Unlock()

	out := inv.Invoke(ctx, question)
	rec := out.Record
	if !out.OK() && !rec.Sentinel {
		rec = chain.SentinelRecord(question)
	}
	out.Record = rec
	s.Append(Entry{Question: question, Record: rec})
	return out, true
}

// Append adds an entry to the end of the history.
func (s *Session) Append(e Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

// Clear drops the whole history.
func (s *Session) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a copy of the history, oldest first.
func (s *Session) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Latest returns the most recent entry.
func (s *Session) Latest() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}
