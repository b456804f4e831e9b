package session

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/audio"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/transport"
)

type Capturer interface {
	Capture(ctx context.Context, mode audio.Mode, maxDuration time.Duration, stop <-chan struct{}) (audio.Clip, error)
}

type Relay interface {
	CheckWakeWord(ctx context.Context, clip audio.Clip) transport.WakeResult
	ProcessVoice(ctx context.Context, clip audio.Clip, history []conversation.Message) (transport.VoiceResult, error)
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Notifier interface {
	WakeDetected(ctx context.Context)
}

type Ducker interface {
	Duck(ctx context.Context, factor float64, over time.Duration) error
	Restore(ctx context.Context, over time.Duration) error
}

// Observer receives outcome counts. Implementations must not block.
type Observer interface {
	Probe(detected bool)
	Relay(outcome string)
	Playback(outcome string)
}

const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeRemoteError    = "remote_error"
	OutcomeParseError     = "parse_error"
	OutcomeCaptureError   = "capture_error"
	OutcomeCanceled       = "canceled"
	OutcomeError          = "error"
)

type Options struct {
	ProbeInterval       time.Duration
	WakeCaptureDuration time.Duration
	SettleDelay         time.Duration
	MainCaptureCeiling  time.Duration
	RearmDelay          time.Duration
	HistorySize         int

	MemoryEnabled bool
	TTSEnabled    bool

	DuckFactor float64
	DuckFade   time.Duration

	Speaker  Speaker
	Notifier Notifier
	Ducker   Ducker
	Observer Observer
	Clock    Clock
}

func DefaultOptions() Options {
	return Options{
		ProbeInterval:       3000 * time.Millisecond,
		WakeCaptureDuration: 2000 * time.Millisecond,
		SettleDelay:         1000 * time.Millisecond,
		MainCaptureCeiling:  10000 * time.Millisecond,
		RearmDelay:          2000 * time.Millisecond,
		HistorySize:         10,
		TTSEnabled:          true,
		DuckFactor:          0.3,
		DuckFade:            250 * time.Millisecond,
	}
}

const subscriberBuffer = 64

// Controller drives the wake-word / record / relay / playback cycle.
//
// Every transition happens under mu. Blocking work runs in goroutines that
// re-enter with the epoch they were started under; a changed epoch means the
// cycle was cancelled and the result is dropped.
type Controller struct {
	opts  Options
	capt  Capturer
	relay Relay
	convo *conversation.Log
	clock Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	epoch    uint64
	closed   bool
	timer    Timer
	settling bool

	probing     bool
	probeCancel context.CancelFunc
	captureDone chan struct{}

	stopMain    chan struct{}
	mainCancel  context.CancelFunc
	duckRelease chan struct{}
	duckDone    chan struct{}

	playID     uint64
	playCancel context.CancelFunc

	subs   map[uint64]chan Event
	nextID uint64
}

func NewController(opts Options, capt Capturer, relay Relay, convo *conversation.Log) *Controller {
	def := DefaultOptions()
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = def.ProbeInterval
	}
	if opts.WakeCaptureDuration <= 0 {
		opts.WakeCaptureDuration = def.WakeCaptureDuration
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = def.SettleDelay
	}
	if opts.MainCaptureCeiling <= 0 {
		opts.MainCaptureCeiling = def.MainCaptureCeiling
	}
	if opts.RearmDelay <= 0 {
		opts.RearmDelay = def.RearmDelay
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if convo == nil {
		convo = conversation.NewLog()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:   opts,
		capt:   capt,
		relay:  relay,
		convo:  convo,
		clock:  opts.Clock,
		ctx:    ctx,
		cancel: cancel,
		state: State{
			Phase:         PhaseIdle,
			MemoryEnabled: opts.MemoryEnabled,
			TTSEnabled:    opts.TTSEnabled,
		},
		subs: make(map[uint64]chan Event),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Entries() []conversation.Entry {
	return c.convo.Entries()
}

// Start arms wake-word probing.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.state.Phase {
	case PhaseProcessing:
		return ErrBusy
	case PhaseWakeProbing, PhaseMainRecording:
		return nil
	}

	c.startProbingLocked()
	return nil
}

// Stop disarms probing and drops any pending settle or re-arm delay.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.state.Phase {
	case PhaseProcessing:
		return ErrBusy
	case PhaseMainRecording:
		return nil
	}

	c.cancelCycleLocked()
	c.setPhaseLocked(PhaseIdle)
	return nil
}

// ToggleRecord starts a main recording right away, or ends the running one
// early so that what was captured gets processed.
func (c *Controller) ToggleRecord() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	switch c.state.Phase {
	case PhaseProcessing:
		return ErrBusy
	case PhaseMainRecording:
		if c.stopMain != nil {
			close(c.stopMain)
			c.stopMain = nil
		}
		return nil
	}

	c.cancelCycleLocked()
	c.enterMainLocked()
	return nil
}

func (c *Controller) SetMemory(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.MemoryEnabled == on {
		return
	}
	c.state.MemoryEnabled = on
	c.publishStateLocked()
}

// SetTTS toggles spoken replies. Turning it off also stops current playback.
func (c *Controller) SetTTS(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.TTSEnabled == on {
		return
	}
	c.state.TTSEnabled = on
	if !on && c.playCancel != nil {
		c.playCancel()
	}
	c.publishStateLocked()
}

func (c *Controller) Clear() conversation.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.convo.Clear()
	c.publishLocked(Event{Type: EventCleared, State: c.state, Entry: &e})
	return e
}

// Announce appends a system entry, e.g. the startup notice.
func (c *Controller) Announce(text string) conversation.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(conversation.KindSystem, text)
}

// Subscribe returns a feed of state changes and new entries. Events are
// dropped for a subscriber whose buffer is full.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels every timer, capture, relay call and playback, closes the
// subscriptions and waits for in-flight goroutines to return.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	c.stopTimerLocked()
	c.settling = false
	c.stopMain = nil
	c.cancel()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Controller) startProbingLocked() {
	c.cancelCycleLocked()
	c.setPhaseLocked(PhaseWakeProbing)
	c.scheduleTickLocked(c.epoch)
}

// cancelCycleLocked invalidates every timer and in-flight probe of the
// current cycle. A running main capture is not touched.
func (c *Controller) cancelCycleLocked() {
	c.epoch++
	c.stopTimerLocked()
	c.settling = false
	if c.probeCancel != nil {
		c.probeCancel()
		c.probeCancel = nil
	}
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) afterLocked(d time.Duration, epoch uint64, f func()) {
	c.stopTimerLocked()
	c.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.epoch != epoch {
			return
		}
		c.timer = nil
		f()
	})
}

func (c *Controller) scheduleTickLocked(epoch uint64) {
	c.afterLocked(c.opts.ProbeInterval, epoch, func() {
		if c.state.Phase != PhaseWakeProbing || c.settling {
			return
		}
		c.scheduleTickLocked(epoch)
		if c.probing {
			log.Debug("Wake probe still in flight, skipping tick")
			return
		}
		c.startProbeLocked(epoch)
	})
}

// beginCaptureLocked chains captures so the next one only opens the
// microphone after the previous one has returned.
func (c *Controller) beginCaptureLocked() (prev <-chan struct{}, done chan struct{}) {
	prev = c.captureDone
	done = make(chan struct{})
	c.captureDone = done
	return prev, done
}

func (c *Controller) startProbeLocked(epoch uint64) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.probeCancel = cancel
	c.probing = true
	prev, done := c.beginCaptureLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		detected, transcription := c.probe(ctx, prev, done)
		c.finishProbe(epoch, detected, transcription)
	}()
}

func (c *Controller) probe(ctx context.Context, prev <-chan struct{}, done chan struct{}) (bool, string) {
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			close(done)
			return false, ""
		}
	}

	clip, err := c.capt.Capture(ctx, audio.ModeWakeWord, c.opts.WakeCaptureDuration, nil)
	close(done)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug("Wake capture failed", "err", err)
		}
		return false, ""
	}

	res := c.relay.CheckWakeWord(ctx, clip)
	return res.Detected, res.Transcription
}

func (c *Controller) finishProbe(epoch uint64, detected bool, transcription string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.probing = false
	if c.closed || c.epoch != epoch || c.state.Phase != PhaseWakeProbing {
		return
	}
	c.probeCancel = nil
	if c.opts.Observer != nil {
		c.opts.Observer.Probe(detected)
	}
	if !detected {
		return
	}

	log.Info("Wake word detected", "transcription", transcription)
	c.cancelCycleLocked()
	c.settling = true
	c.appendLocked(conversation.KindSystem, TextWakeDetected)

	if n := c.opts.Notifier; n != nil {
		c.goLocked(func() { n.WakeDetected(c.ctx) })
	}

	c.afterLocked(c.opts.SettleDelay, c.epoch, func() {
		c.settling = false
		c.enterMainLocked()
	})
}

func (c *Controller) enterMainLocked() {
	epoch := c.epoch
	ctx, cancel := context.WithCancel(c.ctx)
	stop := make(chan struct{})
	c.mainCancel = cancel
	c.stopMain = stop
	c.setPhaseLocked(PhaseMainRecording)

	if d := c.opts.Ducker; d != nil {
		c.restoreDuckLocked()
		after, finished := c.duckDone, make(chan struct{})
		release := make(chan struct{})
		c.duckDone = finished
		c.duckRelease = release
		c.goLocked(func() {
			defer close(finished)
			if after != nil {
				<-after
			}
			c.duckUntil(d, release)
		})
	}

	prev, done := c.beginCaptureLocked()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				close(done)
				c.finishMain(epoch, audio.Clip{}, ctx.Err())
				return
			}
		}
		clip, err := c.capt.Capture(ctx, audio.ModeMain, c.opts.MainCaptureCeiling, stop)
		close(done)
		c.finishMain(epoch, clip, err)
	}()
}

func (c *Controller) finishMain(epoch uint64, clip audio.Clip, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.epoch != epoch || c.state.Phase != PhaseMainRecording {
		return
	}
	c.stopMain = nil
	if c.mainCancel != nil {
		c.mainCancel()
		c.mainCancel = nil
	}
	c.restoreDuckLocked()

	if err != nil {
		log.Warn("Main capture failed", "err", err)
		if c.opts.Observer != nil {
			c.opts.Observer.Relay(OutcomeCaptureError)
		}
		c.appendLocked(conversation.KindSystem, captureErrorText(err))
		c.setPhaseLocked(PhaseIdle)
		c.scheduleRearmLocked()
		return
	}

	c.setPhaseLocked(PhaseProcessing)

	var history []conversation.Message
	if c.state.MemoryEnabled {
		history = c.convo.History(c.opts.HistorySize)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res, err := c.relay.ProcessVoice(c.ctx, clip, history)
		c.finishProcess(epoch, res, err)
	}()
}

func (c *Controller) finishProcess(epoch uint64, res transport.VoiceResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.epoch != epoch || c.state.Phase != PhaseProcessing {
		return
	}

	if err != nil {
		log.Warn("Voice processing failed", "err", err)
		if c.opts.Observer != nil {
			c.opts.Observer.Relay(relayOutcome(err))
		}
		c.appendLocked(conversation.KindSystem, relayErrorText(err))
		c.scheduleRearmLocked()
		return
	}

	if c.opts.Observer != nil {
		c.opts.Observer.Relay(OutcomeOK)
	}
	c.appendLocked(conversation.KindUser, res.Transcription)
	c.appendLocked(conversation.KindAssistant, res.Response)
	if res.TokenUsage != nil {
		log.Debug("Token usage", "prompt", res.TokenUsage.PromptTokens, "completion", res.TokenUsage.CompletionTokens, "total", res.TokenUsage.TotalTokens)
	}

	if c.state.TTSEnabled && res.Response != "" {
		c.startPlaybackLocked(res.Response)
	}
	c.scheduleRearmLocked()
}

// scheduleRearmLocked returns to probing after the re-arm delay. The phase
// stays where it is until then.
func (c *Controller) scheduleRearmLocked() {
	c.afterLocked(c.opts.RearmDelay, c.epoch, func() {
		c.startProbingLocked()
	})
}

// duckUntil lowers other streams for one main recording. Restore runs on
// the same goroutine after Duck returns, even when Duck failed part way.
// Recordings duck one after another; each waits for the previous restore.
func (c *Controller) duckUntil(d Ducker, release <-chan struct{}) {
	if err := d.Duck(c.ctx, c.opts.DuckFactor, c.opts.DuckFade); err != nil {
		log.Debug("Ducking failed", "err", err)
	}

	select {
	case <-release:
	case <-c.ctx.Done():
	}

	if err := d.Restore(context.WithoutCancel(c.ctx), c.opts.DuckFade); err != nil {
		log.Debug("Restoring volume failed", "err", err)
	}
}

func (c *Controller) restoreDuckLocked() {
	if c.duckRelease != nil {
		close(c.duckRelease)
		c.duckRelease = nil
	}
}

// startPlaybackLocked cancels the current playback, if any, and speaks text.
// Playback runs alongside probing and its failures only clear Playing.
func (c *Controller) startPlaybackLocked(text string) {
	sp := c.opts.Speaker
	if sp == nil {
		return
	}
	if c.playCancel != nil {
		c.playCancel()
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.playID++
	id := c.playID
	c.playCancel = cancel
	c.state.Playing = true
	c.publishStateLocked()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		err := sp.Speak(ctx, text)

		outcome := OutcomeOK
		switch {
		case err != nil && ctx.Err() != nil:
			outcome = OutcomeCanceled
		case err != nil:
			outcome = OutcomeError
			log.Debug("Playback failed", "err", err)
		}
		if c.opts.Observer != nil {
			c.opts.Observer.Playback(outcome)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.playID != id {
			return
		}
		c.playCancel = nil
		c.state.Playing = false
		c.publishStateLocked()
	}()
}

func (c *Controller) goLocked(f func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		f()
	}()
}

func (c *Controller) setPhaseLocked(p Phase) {
	if c.state.Phase == p {
		return
	}
	log.Debug("Phase", "from", c.state.Phase, "to", p)
	c.state.Phase = p
	c.publishStateLocked()
}

func (c *Controller) appendLocked(kind conversation.Kind, text string) conversation.Entry {
	e := c.convo.Append(kind, text)
	c.publishLocked(Event{Type: EventEntry, State: c.state, Entry: &e})
	return e
}

func (c *Controller) publishStateLocked() {
	c.publishLocked(Event{Type: EventState, State: c.state})
}

func (c *Controller) publishLocked(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func captureErrorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "microphone permission denied"
	case errors.Is(err, audio.ErrNoAudio):
		return "no audio captured"
	case errors.Is(err, audio.ErrDeviceBusy):
		return "microphone busy"
	}
	return fmt.Sprintf("recording failed: %v", err)
}

func relayErrorText(err error) string {
	var (
		remote *transport.RemoteError
		parse  *transport.ParseError
	)
	switch {
	case errors.As(err, &remote):
		return "assistant error: " + remote.Message
	case errors.As(err, &parse):
		return "invalid response from assistant"
	}
	return "connection error"
}

func relayOutcome(err error) string {
	var (
		remote *transport.RemoteError
		parse  *transport.ParseError
	)
	switch {
	case errors.As(err, &remote):
		return OutcomeRemoteError
	case errors.As(err, &parse):
		return OutcomeParseError
	}
	return OutcomeTransportError
}
