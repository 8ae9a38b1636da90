package player

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/james-see/lyrica/pkg/keyboard"
	"github.com/james-see/lyrica/pkg/keymap"
	"github.com/james-see/lyrica/pkg/scheduler"
	"github.com/james-see/lyrica/pkg/song"
)

// pollInterval is how often blocked waits check for pause and stop
const pollInterval = 5 * time.Millisecond

// overrunTolerance is how late a wait may finish before it is logged
const overrunTolerance = 50 * time.Millisecond

// ErrNoNotes is returned when asked to play a song without notes
var ErrNoNotes = errors.New("song has no notes")

// State is the playback state of an engine
type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateStopped
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats describes the current or most recent playback session
type Stats struct {
	NotesPlayed    int           `json:"notes_played"`
	NotesSkipped   int           `json:"notes_skipped"`
	PauseCount     int           `json:"pause_count"`
	TotalPauseTime time.Duration `json:"total_pause_time"`
}

// Status is a point-in-time view of an engine
type Status struct {
	State          State   `json:"state"`
	Title          string  `json:"title"`
	Index          int     `json:"index"`
	Total          int     `json:"total"`
	Speed          float64 `json:"speed"`
	EffectiveSpeed float64 `json:"effective_speed"`
	Stats          Stats   `json:"stats"`
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its scheduler
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.baseLogger = l
		}
	}
}

// WithSchedulerOptions passes options to the release scheduler
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(e *Engine) {
		e.schedOpts = append(e.schedOpts, opts...)
	}
}

// session is one call to Play
type session struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *session) cancel() {
	s.once.Do(func() { close(s.stop) })
}

// Engine plays songs by pressing keys at the times their notes call for.
// One song plays at a time. Stop, SetSpeed and the status accessors may be
// called from any goroutine.
type Engine struct {
	cfg    Config
	keys   keymap.Resolver
	kb     keyboard.Keyboard
	pause  *PauseSignal
	sched  *scheduler.Scheduler
	logger *slog.Logger

	baseLogger *slog.Logger
	schedOpts  []scheduler.Option

	// sessMu serializes starting and stopping sessions
	sessMu sync.Mutex

	mu        sync.Mutex
	sess      *session
	speed     float64
	press     time.Duration
	retarget  bool
	state     State
	title     string
	index     int
	total     int
	effective float64

	pressedMu sync.Mutex
	pressed   map[keyboard.Key]struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates an engine. A nil pause signal gets a fresh one.
func New(cfg Config, keys keymap.Resolver, kb keyboard.Keyboard, pause *PauseSignal, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if keys == nil {
		return nil, errors.New("keymap is required")
	}
	if kb == nil {
		return nil, errors.New("keyboard is required")
	}
	if pause == nil {
		pause = &PauseSignal{}
	}
	if cfg.MaxPause == 0 {
		cfg.MaxPause = DefaultMaxPause
	}

	e := &Engine{
		cfg:        cfg,
		keys:       keys,
		kb:         kb,
		pause:      pause,
		baseLogger: slog.Default(),
		speed:      ClampSpeed(cfg.Speed),
		press:      cfg.PressDuration,
		pressed:    make(map[keyboard.Key]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.effective = e.speed
	e.logger = e.baseLogger.With("component", "player")
	e.sched = scheduler.New(e.release, append([]scheduler.Option{scheduler.WithLogger(e.baseLogger)}, e.schedOpts...)...)
	return e, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config { return e.cfg }

// PauseSignal returns the pause flag the engine polls
func (e *Engine) PauseSignal() *PauseSignal { return e.pause }

// Play plays s to completion or until stopped. A session already playing is
// stopped first.
func (e *Engine) Play(s *song.Song) error {
	if s == nil || len(s.Notes) == 0 {
		return ErrNoNotes
	}

	e.sessMu.Lock()
	e.stopSession()
	sess := &session{stop: make(chan struct{}), done: make(chan struct{})}
	e.mu.Lock()
	e.sess = sess
	e.retarget = false
	e.state = StatePlaying
	e.title = s.Title
	e.index = 0
	e.total = len(s.Notes)
	e.effective = e.speed
	e.mu.Unlock()
	e.sessMu.Unlock()

	defer close(sess.done)
	e.run(s, sess)
	return nil
}

// Stop aborts the current session and releases every key. It is a no-op
// when nothing is playing.
func (e *Engine) Stop() {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	e.stopSession()
}

// stopSession cancels the active session and waits for it; sessMu must be
// held.
func (e *Engine) stopSession() {
	e.mu.Lock()
	sess := e.sess
	e.sess = nil
	e.mu.Unlock()
	if sess == nil {
		return
	}

	e.logger.Info("stopping playback")
	sess.cancel()
	e.pause.Clear()
	<-sess.done
	e.releaseAll()
}

// Close stops playback and the release scheduler
func (e *Engine) Close() {
	e.Stop()
	e.sched.Stop()
}

// SetSpeed sets the base speed, clamped to [MinSpeed, MaxSpeed]. Values
// that are not positive finite numbers reset the speed to DefaultSpeed.
func (e *Engine) SetSpeed(v float64) {
	clamped, ok := NormalizeSpeed(v)
	if !ok {
		e.logger.Warn("invalid speed, using default", "value", v, "speed", DefaultSpeed)
	} else if clamped != v {
		e.logger.Info("speed clamped", "requested", v, "speed", clamped)
	}

	e.mu.Lock()
	e.speed = clamped
	if e.sess != nil && e.cfg.SpeedTransition > 0 {
		e.retarget = true
	}
	e.mu.Unlock()
	e.logger.Debug("speed set", "speed", clamped)
}

// SetSpeedString parses and sets the speed. Text that is not a number
// resets the speed to DefaultSpeed.
func (e *Engine) SetSpeedString(s string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		e.logger.Warn("speed is not a number, using default", "value", s, "speed", DefaultSpeed)
		v = DefaultSpeed
	}
	e.SetSpeed(v)
}

// SetPressDuration changes how long each key is held. It applies from the
// next note.
func (e *Engine) SetPressDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("press duration must be positive, got %v", d)
	}
	e.mu.Lock()
	e.press = d
	e.mu.Unlock()
	e.logger.Debug("press duration set", "duration", d)
	return nil
}

// PressDuration returns how long each key is held
func (e *Engine) PressDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.press
}

// CurrentSpeed returns the configured base speed
func (e *Engine) CurrentSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// EffectiveSpeed returns the speed used for the most recent note
func (e *Engine) EffectiveSpeed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.effective
}

// Playing reports whether a session is active
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess != nil
}

// Stats returns the statistics of the current or last session
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		State:          e.state,
		Title:          e.title,
		Index:          e.index,
		Total:          e.total,
		Speed:          e.speed,
		EffectiveSpeed: e.effective,
	}
	e.mu.Unlock()
	st.Stats = e.Stats()
	return st
}

func (e *Engine) run(s *song.Song, sess *session) {
	started := time.Now()
	e.statsMu.Lock()
	e.stats = Stats{}
	e.statsMu.Unlock()

	e.sched.Reset()
	e.sched.Restart()
	ctrl := NewSpeedController(e.CurrentSpeed(), e.cfg.EnableRamping, e.cfg.Ramp)

	log := e.logger.With("title", s.Title)
	log.Info("playback starting", "notes", len(s.Notes), "speed", ctrl.Base(), "ramping", e.cfg.EnableRamping)

	stopped := false
	defer func() { e.finish(log, sess, started, stopped) }()

	if !e.sleep(sess.stop, e.cfg.InitialDelay) {
		stopped = true
		return
	}

	total := len(s.Notes)
	var prev int64
	var lastPress time.Time
	first := true

	for i, n := range s.Notes {
		if isClosed(sess.stop) {
			stopped = true
			return
		}
		if !n.Valid() {
			log.Warn("skipping malformed note", "index", i)
			e.countSkipped()
			continue
		}

		if e.pause.IsSet() {
			held, ok := e.waitPaused(log, sess.stop, ctrl)
			if !ok {
				stopped = true
				return
			}
			lastPress = lastPress.Add(held)
		}

		e.syncSpeed(ctrl, time.Now())
		speed := ctrl.Next(i, total, time.Now())
		e.setProgress(i, speed)

		if !first {
			delta := n.Time - prev
			if delta < 0 {
				log.Warn("note is earlier than its predecessor", "index", i, "time", n.Time, "previous", prev)
				delta = 0
			}
			wait := time.Duration(float64(delta)*float64(time.Millisecond)*1000/speed) - time.Since(lastPress)
			if wait > 0 && !e.wait(log, sess.stop, wait, ctrl) {
				stopped = true
				return
			}
		}
		first = false
		prev = n.Time
		lastPress = time.Now()

		key, ok := e.keys.Resolve(n.Key)
		if !ok {
			log.Warn("skipping note with unmapped key", "index", i, "key", n.Key)
			e.countSkipped()
			continue
		}
		if err := e.pressKey(key); err != nil {
			log.Error("press failed", "index", i, "key", key, "err", err)
			e.countSkipped()
			continue
		}
		e.sched.Add(key, e.PressDuration())

		e.statsMu.Lock()
		e.stats.NotesPlayed++
		e.statsMu.Unlock()
	}

	// Hold the last key for its full duration before the cleanup sweep
	if !e.sleep(sess.stop, e.PressDuration()) {
		stopped = true
	}
}

// finish runs on every exit from run
func (e *Engine) finish(log *slog.Logger, sess *session, started time.Time, stopped bool) {
	e.releaseAll()

	state := StateFinished
	if stopped {
		state = StateStopped
	}
	e.mu.Lock()
	if e.sess == sess {
		e.sess = nil
	}
	e.state = state
	e.retarget = false
	e.mu.Unlock()

	st := e.Stats()
	log.Info("playback "+state.String(),
		"elapsed", time.Since(started).Round(time.Millisecond),
		"notes_played", st.NotesPlayed,
		"notes_skipped", st.NotesSkipped,
		"pauses", st.PauseCount,
		"pause_time", st.TotalPauseTime.Round(time.Millisecond))
}

// wait blocks for d while honouring pause and stop. Time spent paused does
// not count against d. It returns false if the session was stopped.
func (e *Engine) wait(log *slog.Logger, stop <-chan struct{}, d time.Duration, ctrl *SpeedController) bool {
	start := time.Now()
	deadline := start.Add(d)
	var held time.Duration

	for {
		if isClosed(stop) {
			return false
		}
		if e.pause.IsSet() {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			h, ok := e.waitPaused(log, stop, ctrl)
			if !ok {
				return false
			}
			held += h
			deadline = time.Now().Add(remaining)
			continue
		}

		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		if left > pollInterval {
			left = pollInterval
		}
		if !e.sleep(stop, left) {
			return false
		}
	}

	if over := time.Since(start) - held - d; over > overrunTolerance {
		log.Warn("wait overran", "wanted", d, "over", over.Round(time.Millisecond))
	}
	return true
}

// waitPaused releases all keys and blocks until the pause clears, the
// session stops or the pause ceiling is hit. On resume it applies the
// resume delay and the after-pause ramp. It returns the time spent here.
func (e *Engine) waitPaused(log *slog.Logger, stop <-chan struct{}, ctrl *SpeedController) (time.Duration, bool) {
	start := time.Now()
	e.setState(StatePaused)
	e.releaseAll()

	snapshot := ctrl.State()
	speedBefore := e.CurrentSpeed()
	log.Info("playback paused")

	record := func() {
		d := time.Since(start)
		e.statsMu.Lock()
		e.stats.PauseCount++
		e.stats.TotalPauseTime += d
		e.statsMu.Unlock()
	}

	for e.pause.IsSet() {
		if time.Since(start) >= e.cfg.MaxPause {
			log.Error("pause exceeded limit, resuming", "limit", e.cfg.MaxPause)
			e.pause.Clear()
			break
		}
		if !e.sleep(stop, pollInterval) {
			record()
			return time.Since(start), false
		}
	}
	record()

	log.Info("playback resuming", "paused", time.Since(start).Round(time.Millisecond))
	if !e.sleep(stop, e.cfg.PauseResumeDelay) {
		return time.Since(start), false
	}

	ctrl.Restore(snapshot)
	e.syncSpeed(ctrl, time.Now())
	if e.cfg.EnableRamping && (e.CurrentSpeed() != speedBefore || snapshot.AfterPause.Active) {
		ctrl.StartAfterPause()
		log.Debug("after-pause ramp started")
	}
	e.setState(StatePlaying)
	return time.Since(start), true
}

// sleep waits for d or until stop closes. It returns false on stop.
func (e *Engine) sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !isClosed(stop)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// syncSpeed applies speed changes requested by other goroutines
func (e *Engine) syncSpeed(ctrl *SpeedController, now time.Time) {
	e.mu.Lock()
	target := e.speed
	retarget := e.retarget
	e.retarget = false
	e.mu.Unlock()

	switch {
	case retarget:
		ctrl.StartTransition(target, e.cfg.SpeedTransition, now)
	case !ctrl.Transitioning() && ctrl.Base() != target:
		ctrl.SetBase(target)
	}
}

func (e *Engine) setProgress(index int, speed float64) {
	e.mu.Lock()
	e.index = index
	e.effective = speed
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) countSkipped() {
	e.statsMu.Lock()
	e.stats.NotesSkipped++
	e.statsMu.Unlock()
}

func (e *Engine) pressKey(key keyboard.Key) error {
	if err := e.kb.Press(key); err != nil {
		return err
	}
	e.pressedMu.Lock()
	e.pressed[key] = struct{}{}
	e.pressedMu.Unlock()
	return nil
}

// release is the scheduler callback
func (e *Engine) release(key keyboard.Key) error {
	e.pressedMu.Lock()
	delete(e.pressed, key)
	e.pressedMu.Unlock()
	return e.kb.Release(key)
}

// releaseAll drops pending releases and releases every key pressed in the
// session.
func (e *Engine) releaseAll() {
	e.sched.Reset()

	e.pressedMu.Lock()
	keys := make([]keyboard.Key, 0, len(e.pressed))
	for k := range e.pressed {
		keys = append(keys, k)
	}
	e.pressed = make(map[keyboard.Key]struct{})
	e.pressedMu.Unlock()

	for _, k := range keys {
		if err := e.kb.Release(k); err != nil {
			e.logger.Error("release failed", "key", k, "err", err)
		}
	}
	if len(keys) > 0 {
		e.logger.Debug("released all keys", "count", len(keys))
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
