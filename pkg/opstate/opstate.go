// Package opstate is a small observable state machine for tracking one
// in-flight upload or chat operation on the client side of the API. It is
// purely presentational: a controller can be discarded and recreated at any
// time without affecting server-side state.
package opstate

import (
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Phase names the coarse processing stage used for progress estimation.
type Phase string

const (
	PhaseExtracting Phase = "extracting"
	PhaseNotes      Phase = "notes"
	PhaseQuizzes    Phase = "quizzes"
	PhaseFlashcards Phase = "flashcards"
	PhaseFinalizing Phase = "finalizing"
)

// Progress floors per phase. Upload occupies 0-10; the processing phases
// split the remainder. The estimate is coarse on purpose: it only has to
// move forward, never be byte-accurate.
var phaseFloor = map[Phase]int{
	PhaseExtracting: 10,
	PhaseNotes:      40,
	PhaseQuizzes:    60,
	PhaseFlashcards: 75,
	PhaseFinalizing: 90,
}

const uploadCeiling = 10

// Snapshot is one observed point of the operation's lifecycle.
type Snapshot struct {
	Status   Status
	Phase    Phase
	Progress int // 0-100, monotonic until reset
	Err      error
}

type Controller struct {
	mu           sync.Mutex
	status       Status
	phase        Phase
	progress     int
	err          error
	subs         map[int]func(Snapshot)
	nextSubID    int
	successDelay time.Duration
	resetTimer   *time.Timer
}

// NewController returns an idle controller. successDelay is how long the
// success state is displayed before the controller returns to idle; zero
// means 2 seconds.
func NewController(successDelay time.Duration) *Controller {
	if successDelay <= 0 {
		successDelay = 2 * time.Second
	}
	return &Controller{
		status:       StatusIdle,
		subs:         make(map[int]func(Snapshot)),
		successDelay: successDelay,
	}
}

// Subscribe registers a callback invoked on every state change and returns
// an unsubscribe function. The callback runs with the controller unlocked.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// StartUpload moves idle to uploading.
func (c *Controller) StartUpload() error {
	return c.transition(StatusIdle, StatusUploading, func() {
		if c.resetTimer != nil {
			c.resetTimer.Stop()
			c.resetTimer = nil
		}
		c.phase = ""
		c.err = nil
		c.progress = 0
	})
}

// SetUploadProgress reports upload transfer progress as a 0-100 fraction of
// bytes sent, scaled into the 0-10 band. Progress never moves backwards.
func (c *Controller) SetUploadProgress(fraction int) {
	c.mu.Lock()
	if c.status != StatusUploading {
		c.mu.Unlock()
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 100 {
		fraction = 100
	}
	scaled := fraction * uploadCeiling / 100
	if scaled > c.progress {
		c.progress = scaled
	}
	snap, fns := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(fns, snap)
}

// StartProcessing moves uploading to processing.
func (c *Controller) StartProcessing() error {
	return c.transition(StatusUploading, StatusProcessing, func() {
		c.phase = PhaseExtracting
		if c.progress < uploadCeiling {
			c.progress = uploadCeiling
		}
	})
}

// EnterPhase advances the processing phase. Entering an earlier phase is a
// no-op for progress so the bar never moves backwards.
func (c *Controller) EnterPhase(p Phase) error {
	floor, ok := phaseFloor[p]
	if !ok {
		return fmt.Errorf("unknown phase %q", p)
	}

	c.mu.Lock()
	if c.status != StatusProcessing {
		c.mu.Unlock()
		return fmt.Errorf("cannot enter phase %q while %s", p, c.status)
	}
	c.phase = p
	if floor > c.progress {
		c.progress = floor
	}
	snap, fns := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(fns, snap)
	return nil
}

// Complete moves processing to success at 100%, then back to idle after the
// display delay.
func (c *Controller) Complete() error {
	err := c.transition(StatusProcessing, StatusSuccess, func() {
		c.progress = 100
		c.resetTimer = time.AfterFunc(c.successDelay, c.resetFromSuccess)
	})
	return err
}

// Fail moves any in-flight state to error, keeping cause for display.
func (c *Controller) Fail(cause error) {
	c.mu.Lock()
	if c.status != StatusUploading && c.status != StatusProcessing {
		c.mu.Unlock()
		return
	}
	c.status = StatusError
	c.err = cause
	snap, fns := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(fns, snap)
}

// Retry returns an errored operation to idle so it can be resubmitted.
func (c *Controller) Retry() error {
	return c.transition(StatusError, StatusIdle, func() {
		c.phase = ""
		c.err = nil
		c.progress = 0
	})
}

func (c *Controller) resetFromSuccess() {
	c.mu.Lock()
	if c.status != StatusSuccess {
		c.mu.Unlock()
		return
	}
	c.status = StatusIdle
	c.phase = ""
	c.progress = 0
	snap, fns := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(fns, snap)
}

func (c *Controller) transition(from, to Status, apply func()) error {
	c.mu.Lock()
	if c.status != from {
		cur := c.status
		c.mu.Unlock()
		return fmt.Errorf("invalid transition %s -> %s (current %s)", from, to, cur)
	}
	c.status = to
	if apply != nil {
		apply()
	}
	snap, fns := c.snapshotLocked(), c.subscribersLocked()
	c.mu.Unlock()
	notify(fns, snap)
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Status: c.status, Phase: c.phase, Progress: c.progress, Err: c.err}
}

func (c *Controller) subscribersLocked() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(Snapshot), snap Snapshot) {
	for _, fn := range fns {
		fn(snap)
	}
}
