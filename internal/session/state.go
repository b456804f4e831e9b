package session

import (
	"errors"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
)

var (
	ErrBusy   = errors.New("session: busy processing")
	ErrClosed = errors.New("session: controller closed")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWakeProbing
	PhaseMainRecording
	PhaseProcessing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWakeProbing:
		return "wake_probing"
	case PhaseMainRecording:
		return "main_recording"
	case PhaseProcessing:
		return "processing"
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = PhaseIdle
	case "wake_probing":
		*p = PhaseWakeProbing
	case "main_recording":
		*p = PhaseMainRecording
	case "processing":
		*p = PhaseProcessing
	default:
		return errors.New("unknown phase " + string(b))
	}
	return nil
}

// State is a snapshot of the controller. Playing overlays any phase.
type State struct {
	Phase         Phase `json:"phase"`
	Playing       bool  `json:"playing"`
	MemoryEnabled bool  `json:"memoryEnabled"`
	TTSEnabled    bool  `json:"ttsEnabled"`
}

type EventType string

const (
	EventState   EventType = "state"
	EventEntry   EventType = "entry"
	EventCleared EventType = "cleared"
)

type Event struct {
	Type  EventType           `json:"type"`
	State State               `json:"state"`
	Entry *conversation.Entry `json:"entry,omitempty"`
}

const (
	TextStarted      = "assistant started"
	TextWakeDetected = "wake word detected"
)
