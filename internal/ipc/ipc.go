package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/session"
)

const DefaultSocketPath = "/tmp/assistant.sock"

type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK      bool                 `json:"ok"`
	Error   string               `json:"error,omitempty"`
	State   *session.State       `json:"state,omitempty"`
	Entries []conversation.Entry `json:"entries,omitempty"`
}

type Handler func(ctx context.Context, req Request) Reply

// Server answers one JSON request per connection on a unix socket.
type Server struct {
	path    string
	ln      net.Listener
	handler Handler
	wg      sync.WaitGroup
}

func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("socket dir: %w", err)
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{path: path, ln: ln, handler: handler}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is done or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			log.Warn("Control socket accept failed", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("Bad control request", "err", err)
		json.NewEncoder(conn).Encode(Reply{Error: "bad request: " + err.Error()})
		return
	}

	log.Debug("Control request", "cmd", req.Cmd, "arg", req.Arg)
	reply := s.handler(ctx, req)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Control reply failed", "err", err)
	}
}

// SendCommand sends one request and waits for the reply.
func SendCommand(ctx context.Context, path string, req Request) (Reply, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK && reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
