// Package feed streams controller state and conversation entries over a
// websocket, replacing the UI's rendering loop for out-of-process viewers.
package feed

import (
	"context"
	"encoding/json"
	log "log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

const (
	FrameSnapshot = "snapshot"

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Frame struct {
	Type    string               `json:"type"`
	State   *session.State       `json:"state,omitempty"`
	Entry   *conversation.Entry  `json:"entry,omitempty"`
	Entries []conversation.Entry `json:"entries,omitempty"`
}

type Source interface {
	Subscribe() (<-chan session.Event, func())
	State() session.State
	Entries() []conversation.Entry
}

type Handler struct {
	src      Source
	upgrader ws.Upgrader

	// OnViewer, if set, is called with +1 and -1 as viewers come and go.
	OnViewer func(delta int)
}

func NewHandler(src Source) *Handler {
	return &Handler{
		src: src,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The feed listens on localhost for local viewers only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("Feed upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.src.Subscribe()
	defer cancel()

	st := h.src.State()
	if err := writeFrame(conn, Frame{Type: FrameSnapshot, State: &st, Entries: h.src.Entries()}); err != nil {
		return
	}

	log.Debug("Feed viewer connected", "remote", r.RemoteAddr)
	if h.OnViewer != nil {
		h.OnViewer(1)
		defer h.OnViewer(-1)
	}

	closed := make(chan struct{})
	go readPump(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
				return
			}
			st := ev.State
			if err := writeFrame(conn, Frame{Type: string(ev.Type), State: &st, Entry: ev.Entry}); err != nil {
				log.Debug("Feed write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			log.Debug("Feed viewer left", "remote", r.RemoteAddr)
			return
		}
	}
}

// readPump drains viewer messages so control frames get processed.
func readPump(conn *ws.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *ws.Conn, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(ws.TextMessage, payload)
}

// Conn is the viewer side of the feed.
type Conn struct {
	conn *ws.Conn
}

func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) Read() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *Conn) Close() error {
	c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.conn.Close()
}

func IsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
