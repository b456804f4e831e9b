package feed

import (
	"context"
	log "log/slog"
	"time"
)

// Watch dials url and calls fn for every frame. When the daemon goes away
// it redials every retry until ctx is done. A zero retry returns on the
// first disconnect.
func Watch(ctx context.Context, url string, retry time.Duration, fn func(Frame)) error {
	for {
		err := watchOnce(ctx, url, fn)
		if ctx.Err() != nil {
			return nil
		}
		if retry <= 0 {
			if IsClosed(err) {
				return nil
			}
			return err
		}

		log.Debug("Feed disconnected, redialing", "url", url, "err", err, "retry", retry)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}
}

func watchOnce(ctx context.Context, url string, fn func(Frame)) error {
	conn, err := Dial(ctx, url)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		f, err := conn.Read()
		if err != nil {
			return err
		}
		fn(f)
	}
}
