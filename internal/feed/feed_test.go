package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

type fakeSource struct {
	mu      sync.Mutex
	events  chan session.Event
	entries []conversation.Entry
	subbed  chan struct{}
}

func (f *fakeSource) Subscribe() (<-chan session.Event, func()) {
	close(f.subbed)
	return f.events, func() {}
}

func (f *fakeSource) State() session.State {
	return session.State{Phase: session.PhaseWakeProbing, TTSEnabled: true}
}

func (f *fakeSource) Entries() []conversation.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries
}

func TestFeedSnapshotAndEvents(t *testing.T) {
	src := &fakeSource{
		events:  make(chan session.Event, 4),
		entries: []conversation.Entry{{ID: "a", Kind: conversation.KindSystem, Text: session.TextStarted}},
		subbed:  make(chan struct{}),
	}
	srv := httptest.NewServer(NewHandler(src))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	snap, err := conn.Read()
	if err != nil {
		t.Fatalf("Read snapshot: %v", err)
	}
	if snap.Type != FrameSnapshot || snap.State == nil || snap.State.Phase != session.PhaseWakeProbing {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Text != session.TextStarted {
		t.Fatalf("snapshot entries = %+v", snap.Entries)
	}

	<-src.subbed
	e := conversation.Entry{ID: "b", Kind: conversation.KindSystem, Text: session.TextWakeDetected}
	src.events <- session.Event{Type: session.EventEntry, State: session.State{Phase: session.PhaseWakeProbing}, Entry: &e}
	src.events <- session.Event{Type: session.EventState, State: session.State{Phase: session.PhaseMainRecording}}

	f, err := conn.Read()
	if err != nil {
		t.Fatalf("Read entry: %v", err)
	}
	if f.Type != string(session.EventEntry) || f.Entry == nil || f.Entry.ID != "b" {
		t.Fatalf("entry frame = %+v", f)
	}

	f, err = conn.Read()
	if err != nil {
		t.Fatalf("Read state: %v", err)
	}
	if f.Type != string(session.EventState) || f.State.Phase != session.PhaseMainRecording {
		t.Fatalf("state frame = %+v", f)
	}

	close(src.events)
	if _, err := conn.Read(); !IsClosed(err) {
		t.Fatalf("err = %v, want close", err)
	}
}

// closingSource ends every subscription right after the snapshot.
type closingSource struct{}

func (closingSource) Subscribe() (<-chan session.Event, func()) {
	ch := make(chan session.Event)
	close(ch)
	return ch, func() {}
}

func (closingSource) State() session.State          { return session.State{Phase: session.PhaseIdle} }
func (closingSource) Entries() []conversation.Entry { return nil }

func TestWatchReturnsOnClose(t *testing.T) {
	srv := httptest.NewServer(NewHandler(closingSource{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frames []Frame
	err := Watch(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), 0, func(f Frame) {
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(frames) != 1 || frames[0].Type != FrameSnapshot {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestWatchRedials(t *testing.T) {
	srv := httptest.NewServer(NewHandler(closingSource{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snapshots := 0
	err := Watch(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), 10*time.Millisecond, func(f Frame) {
		if f.Type == FrameSnapshot {
			snapshots++
		}
		if snapshots == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if snapshots != 3 {
		t.Fatalf("snapshots = %d, want 3", snapshots)
	}
}
