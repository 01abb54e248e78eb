package probe

import (
	"sync"

	"github.com/mastercactapus/gprobe/calibration"
	"github.com/mastercactapus/gprobe/machine"
)

// Config configures a Controller.
type Config struct {
	// Timings are filled from DefaultTimings where zero.
	Timings Timings

	// Store receives tool-length references. Defaults to a MemoryStore.
	Store calibration.Store

	// Observer is called from the session loop on every status change.
	// It must not block or call back into the session.
	Observer func(Status)
}

// Controller owns the probe sessions of one connection. At most one
// session is active at a time.
type Controller struct {
	t   machine.Transport
	cfg Config

	mx     sync.Mutex
	active *Session
	last   *Session
}

func NewController(t machine.Transport, cfg Config) *Controller {
	cfg.Timings = cfg.Timings.withDefaults()
	if cfg.Store == nil {
		cfg.Store = calibration.NewMemoryStore()
	}
	return &Controller{t: t, cfg: cfg}
}

// Store returns the calibration store sessions write to.
func (c *Controller) Store() calibration.Store { return c.cfg.Store }

// Start builds the sequence for m and opens a session for it. Invalid
// parameters are reported here, before anything is sent.
func (c *Controller) Start(m Method, ctx Context) (*Session, error) {
	c.mx.Lock()
	if c.active != nil {
		c.mx.Unlock()
		return nil, ErrSessionActive
	}
	lines, err := Build(m, ctx)
	if err != nil {
		c.mx.Unlock()
		return nil, err
	}

	s := newSession(c.t, m, ctx, lines, c.cfg.Timings)
	s.rec = calibration.NewRecorder(c.cfg.Store)
	s.observe = c.cfg.Observer
	s.onFinish = c.release
	c.active = s
	c.last = s
	c.mx.Unlock()

	var seed *machine.State
	if src, ok := c.t.(interface{ State() machine.State }); ok {
		if st := src.State(); !st.Time.IsZero() {
			seed = &st
		}
	}
	s.start(seed)
	return s, nil
}

func (c *Controller) release(s *Session) {
	c.mx.Lock()
	if c.active == s {
		c.active = nil
	}
	c.mx.Unlock()
}

// Active returns the running session, or nil.
func (c *Controller) Active() *Session {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.active
}

// Current returns the running session, or the last one if none is running.
func (c *Controller) Current() *Session {
	c.mx.Lock()
	defer c.mx.Unlock()
	if c.active != nil {
		return c.active
	}
	return c.last
}

// Cancel cancels the running session.
func (c *Controller) Cancel() error {
	s := c.Active()
	if s == nil {
		return ErrSessionClosed
	}
	return s.Cancel()
}
