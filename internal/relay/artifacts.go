package relay

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// Store keeps synthesized audio on disk for a fixed retention. Every
// artifact is removed when its retention expires, fetched or not.
type Store struct {
	dir       string
	retention time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	// OnChange, if set, receives the number of live artifacts after every
	// save and expiry.
	OnChange func(active int)
}

func NewStore(dir string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{
		dir:       dir,
		retention: retention,
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Save writes data under a fresh name with the given extension (".mp3").
func (s *Store) Save(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.New("artifact store closed")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	s.timers[name] = time.AfterFunc(s.retention, func() { s.expire(name) })
	s.changed()

	log.Debug("Stored artifact", "name", name, "bytes", len(data), "retention", s.retention)
	return name, nil
}

// Path returns the file of a live artifact.
func (s *Store) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", ErrArtifactNotFound
	}

	s.mu.Lock()
	_, ok := s.timers[name]
	s.mu.Unlock()
	if !ok {
		return "", ErrArtifactNotFound
	}
	return filepath.Join(s.dir, name), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Store) expire(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[name]; !ok {
		return
	}
	delete(s.timers, name)
	s.remove(name)
	s.changed()
}

// Close stops pending expiries and deletes every live artifact.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for name, t := range s.timers {
		t.Stop()
		s.remove(name)
	}
	s.timers = map[string]*time.Timer{}
	s.changed()
	return nil
}

func (s *Store) remove(name string) {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to delete artifact", "name", name, "err", err)
	}
}

func (s *Store) changed() {
	if s.OnChange != nil {
		s.OnChange(len(s.timers))
	}
}
