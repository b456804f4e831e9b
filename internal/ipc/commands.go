package ipc

import (
	"context"
	"fmt"
	"strings"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

const (
	CmdRecord  = "record"
	CmdWake    = "wake"
	CmdMemory  = "memory"
	CmdTTS     = "tts"
	CmdClear   = "clear"
	CmdStatus  = "status"
	CmdHistory = "history"
)

type Controller interface {
	Start() error
	Stop() error
	ToggleRecord() error
	SetMemory(on bool)
	SetTTS(on bool)
	Clear() conversation.Entry
	State() session.State
	Entries() []conversation.Entry
}

// NewHandler maps control commands onto the session controller. Every reply
// carries the resulting state.
func NewHandler(c Controller) Handler {
	return func(_ context.Context, req Request) Reply {
		var err error

		switch req.Cmd {
		case CmdRecord:
			err = c.ToggleRecord()
		case CmdWake:
			var on bool
			if on, err = parseSwitch(req.Arg); err == nil {
				if on {
					err = c.Start()
				} else {
					err = c.Stop()
				}
			}
		case CmdMemory:
			var on bool
			if on, err = parseSwitch(req.Arg); err == nil {
				c.SetMemory(on)
			}
		case CmdTTS:
			var on bool
			if on, err = parseSwitch(req.Arg); err == nil {
				c.SetTTS(on)
			}
		case CmdClear:
			c.Clear()
		case CmdStatus:
		case CmdHistory:
			st := c.State()
			return Reply{OK: true, State: &st, Entries: c.Entries()}
		default:
			err = fmt.Errorf("unknown command %q", req.Cmd)
		}

		st := c.State()
		if err != nil {
			return Reply{Error: err.Error(), State: &st}
		}
		return Reply{OK: true, State: &st}
	}
}

func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on|off, got %q", arg)
}
