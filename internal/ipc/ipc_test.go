package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

type fakeController struct {
	state   session.State
	calls   []string
	busy    bool
	entries []conversation.Entry
}

func (f *fakeController) Start() error {
	f.calls = append(f.calls, "start")
	if f.busy {
		return session.ErrBusy
	}
	f.state.Phase = session.PhaseWakeProbing
	return nil
}

func (f *fakeController) Stop() error {
	f.calls = append(f.calls, "stop")
	f.state.Phase = session.PhaseIdle
	return nil
}

func (f *fakeController) ToggleRecord() error {
	f.calls = append(f.calls, "record")
	if f.busy {
		return session.ErrBusy
	}
	f.state.Phase = session.PhaseMainRecording
	return nil
}

func (f *fakeController) SetMemory(on bool) { f.state.MemoryEnabled = on }
func (f *fakeController) SetTTS(on bool)    { f.state.TTSEnabled = on }

func (f *fakeController) Clear() conversation.Entry {
	f.calls = append(f.calls, "clear")
	e := conversation.Entry{ID: "c", Kind: conversation.KindSystem, Text: conversation.ClearedText}
	f.entries = []conversation.Entry{e}
	return e
}

func (f *fakeController) State() session.State           { return f.state }
func (f *fakeController) Entries() []conversation.Entry { return f.entries }

func TestHandlerCommands(t *testing.T) {
	tests := []struct {
		req     Request
		wantOK  bool
		check   func(*fakeController) bool
		comment string
	}{
		{Request{Cmd: CmdWake, Arg: "on"}, true, func(f *fakeController) bool { return f.state.Phase == session.PhaseWakeProbing }, "wake on"},
		{Request{Cmd: CmdWake, Arg: "off"}, true, func(f *fakeController) bool { return f.state.Phase == session.PhaseIdle }, "wake off"},
		{Request{Cmd: CmdRecord}, true, func(f *fakeController) bool { return f.state.Phase == session.PhaseMainRecording }, "record"},
		{Request{Cmd: CmdMemory, Arg: "ON"}, true, func(f *fakeController) bool { return f.state.MemoryEnabled }, "memory on"},
		{Request{Cmd: CmdTTS, Arg: "false"}, true, func(f *fakeController) bool { return !f.state.TTSEnabled }, "tts off"},
		{Request{Cmd: CmdClear}, true, func(f *fakeController) bool { return len(f.entries) == 1 }, "clear"},
		{Request{Cmd: CmdStatus}, true, nil, "status"},
		{Request{Cmd: CmdMemory, Arg: "maybe"}, false, nil, "bad switch"},
		{Request{Cmd: "dance"}, false, nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			f := &fakeController{state: session.State{TTSEnabled: true}}
			reply := NewHandler(f)(context.Background(), tt.req)
			if reply.OK != tt.wantOK {
				t.Fatalf("ok = %v (%s), want %v", reply.OK, reply.Error, tt.wantOK)
			}
			if reply.State == nil {
				t.Fatalf("reply carries no state")
			}
			if tt.check != nil && !tt.check(f) {
				t.Fatalf("controller state = %+v", f.state)
			}
		})
	}
}

func TestHandlerBusy(t *testing.T) {
	f := &fakeController{busy: true}
	reply := NewHandler(f)(context.Background(), Request{Cmd: CmdRecord})
	if reply.OK || reply.Error != session.ErrBusy.Error() {
		t.Fatalf("reply = %+v, want busy error", reply)
	}
}

func TestServerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	f := &fakeController{entries: []conversation.Entry{{ID: "1", Kind: conversation.KindUser, Text: "hi"}}}

	srv, err := Listen(path, NewHandler(f))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	defer func() {
		cancel()
		<-served
		srv.Close()
	}()

	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()

	reply, err := SendCommand(rctx, path, Request{Cmd: CmdHistory})
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(reply.Entries) != 1 || reply.Entries[0].Text != "hi" {
		t.Fatalf("entries = %+v", reply.Entries)
	}

	_, err = SendCommand(rctx, path, Request{Cmd: "nope"})
	if err == nil {
		t.Fatalf("unknown command should fail")
	}
}

func TestSendCommandNoDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")
	_, err := SendCommand(context.Background(), path, Request{Cmd: CmdStatus})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want dial error", err)
	}
}
