package ota

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
)

// UploadState is the state of the firmware upload channel
type UploadState int

const (
	StateIdle UploadState = iota
	StateReceiving
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s UploadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON status documents
func (s UploadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText
func (s *UploadState) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown upload state %q", text)
}

const (
	// DefaultYieldBytes bounds how much is written between liveness feeds
	DefaultYieldBytes = 4096

	// DefaultRestartDelay leaves time for the response to drain before reboot
	DefaultRestartDelay = time.Second
)

// Chunk is one sequential piece of an upload body.
type Chunk struct {
	Offset int64
	Data   []byte
	Final  bool
}

// Session is the single in-flight upload.
type Session struct {
	ID                 string
	DeclaredTotalBytes int64
	BytesWrittenSoFar  int64
	State              UploadState
	StartedAt          time.Time
}

// Progress reports where an upload stands after a chunk.
type Progress struct {
	SessionID      string      `json:"session_id"`
	State          UploadState `json:"state"`
	Written        int64       `json:"written"`
	Declared       int64       `json:"declared"`
	RestartPending bool        `json:"restart_pending,omitempty"`
	RestartError   string      `json:"restart_error,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Status is a point-in-time view of the channel for status reporting.
type Status struct {
	State   UploadState `json:"state"`
	Current *Progress   `json:"current,omitempty"`
	Last    *Progress   `json:"last,omitempty"`
}

// Options configures a Channel
type Options struct {
	Logger *zap.Logger

	// Liveness is fed after every YieldBytes written
	Liveness Liveness

	// Restarter reboots the device once a committed upload was delivered
	Restarter Restarter

	RestartDelay time.Duration
	YieldBytes   int

	// Notify receives short human-readable progress lines. It must not block.
	Notify func(msg string)
}

// Channel drives uploads through a FlashWriter. A Channel owns the
// FlashWriter exclusively; at most one session holds it at a time.
type Channel struct {
	flash  FlashWriter
	opts   Options
	logger *zap.Logger

	mu             sync.Mutex
	session        *Session
	last           *Progress
	restartPending bool
	restartTimer   *time.Timer
}

// NewChannel creates an idle upload channel.
func NewChannel(flash FlashWriter, opts Options) *Channel {
	if opts.Liveness == nil {
		opts.Liveness = nopLiveness{}
	}
	if opts.YieldBytes <= 0 {
		opts.YieldBytes = DefaultYieldBytes
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	return &Channel{
		flash:  flash,
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
	}
}

// HandleChunk feeds one chunk to the state machine. declaredTotal is only
// consulted on the first chunk (Offset == 0).
//
// Every returned error is a *core.Error. Protocol and storage errors end the
// session and release the FlashWriter, except a rejected second upload,
// which leaves the active session untouched.
func (c *Channel) HandleChunk(chunk Chunk, declaredTotal int64) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.Offset == 0 {
		if err := c.beginLocked(declaredTotal); err != nil {
			if c.session != nil {
				return c.progressLocked(), err
			}
			return c.lastOr(Progress{State: StateFailed}), err
		}
	}

	s := c.session
	if s == nil || s.State != StateReceiving {
		return Progress{State: StateIdle}, core.NewProtocolError(http.StatusBadRequest,
			fmt.Sprintf("chunk at offset %d received with no active upload", chunk.Offset))
	}

	if chunk.Offset != s.BytesWrittenSoFar {
		return c.failLocked(true, core.NewProtocolError(http.StatusBadRequest,
			fmt.Sprintf("chunk offset %d does not follow %d bytes written", chunk.Offset, s.BytesWrittenSoFar)))
	}
	if s.BytesWrittenSoFar+int64(len(chunk.Data)) > s.DeclaredTotalBytes {
		return c.failLocked(true, core.NewProtocolError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds declared size of %d bytes", s.DeclaredTotalBytes)))
	}

	if err := c.writeLocked(chunk.Data); err != nil {
		return c.failLocked(true, err)
	}

	if !chunk.Final {
		c.logger.Debug("upload chunk written",
			zap.String("session", s.ID),
			zap.Int64("written", s.BytesWrittenSoFar),
			zap.Int64("declared", s.DeclaredTotalBytes),
		)
		return c.progressLocked(), nil
	}

	return c.finishLocked()
}

func (c *Channel) beginLocked(declaredTotal int64) error {
	if c.session != nil && c.session.State == StateReceiving {
		return core.NewProtocolError(http.StatusConflict, "another firmware upload is already in progress")
	}

	var err *core.Error
	switch {
	case declaredTotal <= 0:
		err = core.NewProtocolError(http.StatusBadRequest, "upload size missing or zero")
	case declaredTotal > c.flash.Capacity():
		err = core.NewStorageError("open",
			fmt.Sprintf("image of %d bytes exceeds capacity of %d", declaredTotal, c.flash.Capacity()), nil)
		err.Status = http.StatusRequestEntityTooLarge
	}
	if err != nil {
		c.recordFailure("", declaredTotal, 0, err)
		return err
	}

	s := &Session{
		ID:                 uuid.NewString(),
		DeclaredTotalBytes: declaredTotal,
		State:              StateReceiving,
		StartedAt:          time.Now(),
	}

	if openErr := c.flash.Open(declaredTotal); openErr != nil {
		err := asCoreError(openErr, "open")
		c.recordFailure(s.ID, declaredTotal, 0, err)
		return err
	}

	c.session = s
	c.restartPending = false
	c.logger.Info("firmware upload started",
		zap.String("session", s.ID),
		zap.Int64("declared", declaredTotal),
	)
	c.notify(fmt.Sprintf("update started: %d bytes", declaredTotal))
	return nil
}

// writeLocked writes data in YieldBytes slices, feeding liveness between
// slices so a single large chunk never starves the watchdog.
func (c *Channel) writeLocked(data []byte) *core.Error {
	s := c.session
	step := c.opts.YieldBytes
	for off := 0; off < len(data); off += step {
		end := off + step
		if end > len(data) {
			end = len(data)
		}
		if err := c.flash.WriteChunk(data[off:end]); err != nil {
			return asCoreError(err, "write")
		}
		s.BytesWrittenSoFar += int64(end - off)
		c.opts.Liveness.Feed()
	}
	return nil
}

func (c *Channel) finishLocked() (Progress, error) {
	s := c.session
	s.State = StateFinalizing

	if s.BytesWrittenSoFar != s.DeclaredTotalBytes {
		return c.failLocked(true, core.NewProtocolError(http.StatusBadRequest,
			fmt.Sprintf("received %d of %d declared bytes", s.BytesWrittenSoFar, s.DeclaredTotalBytes)))
	}

	c.opts.Liveness.Feed()
	if err := c.flash.Finalize(); err != nil {
		return c.failLocked(true, asCoreError(err, "finalize"))
	}

	s.State = StateCompleted
	c.restartPending = c.opts.Restarter != nil
	p := c.progressLocked()
	c.last = &p
	c.session = nil

	c.logger.Info("firmware upload committed",
		zap.String("session", s.ID),
		zap.Int64("size", s.BytesWrittenSoFar),
		zap.Duration("elapsed", time.Since(s.StartedAt)),
	)
	c.notify("update complete")
	return p, nil
}

// failLocked ends the active session. The FlashWriter is aborted when
// abort is set so nothing staged can ever be committed.
func (c *Channel) failLocked(abort bool, err *core.Error) (Progress, error) {
	s := c.session
	s.State = StateFailed

	if abort {
		if abortErr := c.flash.Abort(); abortErr != nil {
			c.logger.Error("flash abort failed", zap.String("session", s.ID), zap.Error(abortErr))
		}
	}

	c.session = nil
	p := c.recordFailure(s.ID, s.DeclaredTotalBytes, s.BytesWrittenSoFar, err)
	return p, err
}

func (c *Channel) recordFailure(id string, declared, written int64, err error) Progress {
	p := Progress{
		SessionID: id,
		State:     StateFailed,
		Written:   written,
		Declared:  declared,
		Error:     err.Error(),
	}
	c.last = &p
	c.logger.Warn("firmware upload failed",
		zap.String("session", id),
		zap.Int64("written", written),
		zap.Int64("declared", declared),
		zap.Error(err),
	)
	c.notify("update failed: " + err.Error())
	return p
}

// Abandon ends the session with the given ID if it is still receiving.
// It is called when the upload connection closes before the final chunk.
func (c *Channel) Abandon(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.session.ID != sessionID || c.session.State != StateReceiving {
		return
	}
	_, _ = c.failLocked(true, core.NewProtocolError(http.StatusBadRequest, "upload connection closed before final chunk"))
}

// ConfirmDelivered schedules the restart for a committed upload once the
// response has been flushed to the client. It reports whether a restart
// was scheduled.
func (c *Channel) ConfirmDelivered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.restartPending || c.restartTimer != nil {
		return false
	}
	c.restartPending = false

	restarter := c.opts.Restarter
	logger := c.logger
	logger.Info("restart scheduled", zap.Duration("delay", c.opts.RestartDelay))
	c.restartTimer = time.AfterFunc(c.opts.RestartDelay, func() {
		_ = logger.Sync()
		err := restarter.Restart()

		c.mu.Lock()
		c.restartTimer = nil
		if err != nil && c.last != nil && c.last.State == StateCompleted {
			c.last.RestartError = err.Error()
		}
		c.mu.Unlock()

		if err != nil {
			logger.Error("device restart failed", zap.Error(err))
			c.notify("restart failed: " + err.Error())
		}
	})
	return true
}

// Snapshot returns the channel status.
func (c *Channel) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: StateIdle}
	if c.session != nil {
		p := c.progressLocked()
		st.State = c.session.State
		st.Current = &p
	}
	if c.last != nil {
		last := *c.last
		last.RestartPending = last.State == StateCompleted && (c.restartPending || c.restartTimer != nil)
		st.Last = &last
	}
	return st
}

func (c *Channel) progressLocked() Progress {
	s := c.session
	return Progress{
		SessionID:      s.ID,
		State:          s.State,
		Written:        s.BytesWrittenSoFar,
		Declared:       s.DeclaredTotalBytes,
		RestartPending: s.State == StateCompleted && c.restartPending,
	}
}

func (c *Channel) lastOr(p Progress) Progress {
	if c.last != nil {
		return *c.last
	}
	return p
}

func (c *Channel) notify(msg string) {
	if c.opts.Notify != nil {
		c.opts.Notify(msg)
	}
}

func asCoreError(err error, op string) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewStorageError(op, "flash "+op+" failed", err)
}
