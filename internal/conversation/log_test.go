package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendKeepsInsertionOrder(t *testing.T) {
	l := NewLog()
	l.Append(KindSystem, "started")
	l.Append(KindUser, "hello")
	l.Append(KindAssistant, "hi there")

	got := l.Entries()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	want := []Kind{KindSystem, KindUser, KindAssistant}
	for i, k := range want {
		if got[i].Kind != k {
			t.Fatalf("entry %d kind = %s, want %s", i, got[i].Kind, k)
		}
	}

	seen := map[string]bool{}
	for _, e := range got {
		if e.ID == "" {
			t.Fatalf("entry %q has empty id", e.Text)
		}
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestAppendStampsTime(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLog()
	l.now = func() time.Time { return fixed }

	e := l.Append(KindUser, "x")
	if !e.CreatedAt.Equal(fixed) {
		t.Fatalf("CreatedAt = %v, want %v", e.CreatedAt, fixed)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Append(KindUser, "one")

	got := l.Entries()
	got[0].Text = "mutated"

	if l.Entries()[0].Text != "one" {
		t.Fatalf("log entry was mutated through Entries()")
	}
}

func TestClearLeavesSingleSystemEntry(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		l.Append(KindUser, fmt.Sprintf("u%d", i))
	}

	l.Clear()

	got := l.Entries()
	if len(got) != 1 {
		t.Fatalf("len after clear = %d, want 1", len(got))
	}
	if got[0].Kind != KindSystem || got[0].Text != ClearedText {
		t.Fatalf("entry after clear = %+v", got[0])
	}
}

func TestClearNotInterleavedWithAppend(t *testing.T) {
	l := NewLog()
	l.Append(KindUser, "before")

	// An append racing with Clear lands while the cleared entry is built.
	racing := true
	l.now = func() time.Time {
		if racing {
			racing = false
			l.Append(KindUser, "racing")
		}
		return time.Now()
	}

	e := l.Clear()

	got := l.Entries()
	if len(got) != 1 || got[0].ID != e.ID {
		t.Fatalf("entries after clear = %+v, want only %+v", got, e)
	}
}

func TestClearUnderConcurrentAppends(t *testing.T) {
	l := NewLog()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.Append(KindUser, "u")
			}
		}()
	}

	for i := 0; i < 50; i++ {
		e := l.Clear()
		got := l.Entries()
		idx := -1
		for k, g := range got {
			if g.ID == e.ID {
				idx = k
			}
		}
		if idx != 0 {
			t.Fatalf("cleared entry at index %d, want 0", idx)
		}
	}
	wg.Wait()
}

func TestHistorySkipsSystemAndKeepsLastTen(t *testing.T) {
	l := NewLog()
	l.Append(KindSystem, "started")
	for i := 0; i < 15; i++ {
		kind := KindUser
		if i%2 == 1 {
			kind = KindAssistant
		}
		l.Append(kind, fmt.Sprintf("m%d", i))
		l.Append(KindSystem, "noise")
	}

	h := l.History(10)
	if len(h) != 10 {
		t.Fatalf("len = %d, want 10", len(h))
	}
	for i, m := range h {
		want := fmt.Sprintf("m%d", i+5)
		if m.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, m.Content, want)
		}
	}
	if h[0].Role != "assistant" || h[1].Role != "user" {
		t.Fatalf("roles = %s,%s, want assistant,user", h[0].Role, h[1].Role)
	}
}

func TestHistoryShortLog(t *testing.T) {
	l := NewLog()
	l.Append(KindUser, "only")

	h := l.History(10)
	if len(h) != 1 || h[0].Content != "only" || h[0].Role != "user" {
		t.Fatalf("history = %+v", h)
	}
	if got := l.History(0); got != nil {
		t.Fatalf("History(0) = %+v, want nil", got)
	}
}

func TestOnAppendHook(t *testing.T) {
	l := NewLog()
	var got []Entry
	l.OnAppend(func(e Entry) { got = append(got, e) })

	l.Append(KindUser, "a")
	l.Clear()

	if len(got) != 2 {
		t.Fatalf("hook calls = %d, want 2", len(got))
	}
	if got[1].Kind != KindSystem {
		t.Fatalf("second hook entry kind = %s, want system", got[1].Kind)
	}
}
