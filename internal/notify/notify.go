package notify

import (
	"context"
	log "log/slog"

	"github.com/gen2brain/beeep"
)

type CuePlayer interface {
	PlayFile(ctx context.Context, path string) error
}

// Notifier tells the user that the assistant is now listening: a desktop
// notification and, if configured, a short cue sound.
type Notifier struct {
	Title   string
	Message string
	Desktop bool
	Cue     string
	Player  CuePlayer

	notify func(title, message string, icon any) error
}

func New(title string, desktop bool, cue string, player CuePlayer) *Notifier {
	if title == "" {
		title = "Assistant"
	}
	beeep.AppName = title
	return &Notifier{
		Title:   title,
		Message: "Listening...",
		Desktop: desktop,
		Cue:     cue,
		Player:  player,
		notify:  beeep.Notify,
	}
}

func (n *Notifier) WakeDetected(ctx context.Context) {
	if n.Desktop {
		if err := n.notify(n.Title, n.Message, ""); err != nil {
			log.Debug("Desktop notification failed", "err", err)
		}
	}

	if n.Cue != "" && n.Player != nil {
		if err := n.Player.PlayFile(ctx, n.Cue); err != nil {
			log.Debug("Cue playback failed", "cue", n.Cue, "err", err)
		}
	}
}
