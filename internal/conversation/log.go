package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSystem    Kind = "system"
)

// Entry is one line of the transcript. Entries are never modified after Append.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is the role/content pair the relay expects in conversationHistory.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const ClearedText = "conversation history cleared"

type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
	onAdd   func(Entry)
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// OnAppend registers a hook called after every append, outside the lock.
func (l *Log) OnAppend(f func(Entry)) {
	l.mu.Lock()
	l.onAdd = f
	l.mu.Unlock()
}

func (l *Log) Append(kind Kind, text string) Entry {
	e := l.newEntry(kind, text)

	l.mu.Lock()
	l.entries = append(l.entries, e)
	hook := l.onAdd
	l.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return e
}

// Clear empties the log and leaves the single "cleared" system entry.
func (l *Log) Clear() Entry {
	e := l.newEntry(KindSystem, ClearedText)

	l.mu.Lock()
	l.entries = []Entry{e}
	hook := l.onAdd
	l.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return e
}

func (l *Log) newEntry(kind Kind, text string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: l.now(),
	}
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// History returns the last n non-system entries, oldest first.
func (l *Log) History(n int) []Message {
	if n <= 0 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		e := l.entries[i]
		if e.Kind == KindSystem {
			continue
		}
		role := "assistant"
		if e.Kind == KindUser {
			role = "user"
		}
		out = append(out, Message{Role: role, Content: e.Text})
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
