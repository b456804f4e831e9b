package notify

import (
	"context"
	"errors"
	"testing"
)

type cueRecorder struct {
	paths []string
	err   error
}

func (c *cueRecorder) PlayFile(_ context.Context, path string) error {
	c.paths = append(c.paths, path)
	return c.err
}

func TestWakeDetectedNotifiesAndPlaysCue(t *testing.T) {
	cue := &cueRecorder{}
	n := New("Asistan", true, "cue.mp3", cue)

	var titles []string
	n.notify = func(title, message string, _ any) error {
		titles = append(titles, title+": "+message)
		return nil
	}

	n.WakeDetected(context.Background())

	if len(titles) != 1 || titles[0] != "Asistan: Listening..." {
		t.Fatalf("notifications = %v", titles)
	}
	if len(cue.paths) != 1 || cue.paths[0] != "cue.mp3" {
		t.Fatalf("cues = %v", cue.paths)
	}
}

func TestWakeDetectedIgnoresFailures(t *testing.T) {
	cue := &cueRecorder{err: errors.New("no device")}
	n := New("", false, "cue.mp3", cue)
	n.notify = func(string, string, any) error {
		t.Fatalf("desktop notification sent while disabled")
		return nil
	}

	n.WakeDetected(context.Background())

	if n.Title != "Assistant" {
		t.Fatalf("default title = %q", n.Title)
	}
	if len(cue.paths) != 1 {
		t.Fatalf("cue not attempted")
	}
}

func TestWakeDetectedWithoutCue(t *testing.T) {
	n := New("x", true, "", nil)
	calls := 0
	n.notify = func(string, string, any) error {
		calls++
		return errors.New("dbus unavailable")
	}

	n.WakeDetected(context.Background())
	if calls != 1 {
		t.Fatalf("notify calls = %d", calls)
	}
}
