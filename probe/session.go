package probe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/calibration"
	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/metrics"
	"github.com/mastercactapus/gprobe/vm"
)

// events handled by the session loop
type (
	evLineSent     struct{ line, source string }
	evLineReceived struct{ line string }
	evPhase        struct{ from, to machine.Phase }
	evState        struct{ st machine.State }
	evDisconnected struct{ err error }
	evDispatch     struct{ d *dispatcher }
	evDebounce     struct{ gen int }
	evFallback     struct{}
	evCommand      struct {
		op    op
		reply chan error
	}
)

type op int

const (
	opNext op = iota
	opBack
	opConfirm
	opRun
	opCancel
)

// Session runs one Method on a transport. All of its state is owned by a
// single event loop; transport callbacks, timers and commands are queued
// into its mailbox.
type Session struct {
	id      string
	tag     string
	method  Method
	ctx     Context
	lines   []Line
	timings Timings

	t        machine.Transport
	rec      *calibration.Recorder
	log      zerolog.Logger
	observe  func(Status)
	onFinish func(*Session)

	mb   *mailbox
	sub  *machine.Subscription
	done chan struct{}

	state        State
	step         int
	checkPassed  bool
	navConfirmed bool

	sample *machine.State
	probe  *coord.Point
	vm     *vm.Machine

	nav     *dispatcher
	run     *dispatcher
	waiting *dispatcher

	trk  *tracker
	wire wireQueue
	mon  monitor
	arb  arbiter
	stab *stabilizer

	debounce    *time.Timer
	debounceGen int
	fallback    *time.Timer

	result     *Result
	bestEffort bool
	err        *Error
	terminal   bool

	startedAt  time.Time
	ranAt      time.Time
	finishedAt time.Time

	mx     sync.Mutex
	status Status
}

func newSession(t machine.Transport, m Method, ctx Context, lines []Line, timings Timings) *Session {
	id := uuid.NewString()
	ctx.CoordinateSystem = ctx.WCS()
	s := &Session{
		id:        id,
		tag:       "probe-" + id,
		method:    m,
		ctx:       ctx,
		lines:     lines,
		timings:   timings,
		t:         t,
		log:       logging.WithComponent("probe").With().Str(logging.FieldSessionID, id).Str(logging.FieldMethod, m.Name()).Logger(),
		mb:        newMailbox(),
		done:      make(chan struct{}),
		vm:        vm.NewMachine(),
		step:      1,
		startedAt: time.Now(),
	}
	s.state = stateFor(Steps(m)[0])
	return s
}

func (s *Session) start(seed *machine.State) {
	s.sample = seed
	s.sub = s.t.Subscribe(machine.Listener{
		LineSent:     func(line, source string) { s.mb.post(evLineSent{line: line, source: source}) },
		LineReceived: func(line string) { s.mb.post(evLineReceived{line: line}) },
		PhaseChanged: func(from, to machine.Phase) { s.mb.post(evPhase{from: from, to: to}) },
		StateUpdated: func(st machine.State) { s.mb.post(evState{st: st}) },
		Disconnected: func(err error) { s.mb.post(evDisconnected{err: err}) },
	})
	metrics.RecordStart(s.method.Name())
	s.log.Info().
		Str(logging.FieldNewStatus, string(s.state)).
		Int("total_steps", TotalSteps(s.method)).
		Msg("session started")
	s.publish()

	go s.loop()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Method returns the method the session runs.
func (s *Session) Method() Method { return s.method }

// Done is closed once the session reaches a terminal status.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the latest snapshot.
func (s *Session) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.status
}

// Next moves to the next wizard step.
func (s *Session) Next() error { return s.do(opNext) }

// Back moves to the previous wizard step and clears navigation confirmation.
func (s *Session) Back() error { return s.do(opBack) }

// ConfirmNavigation sends the bit setter travel moves. Navigation counts as
// confirmed once they have all been sent.
func (s *Session) ConfirmNavigation() error { return s.do(opConfirm) }

// Run starts the probe sequence.
func (s *Session) Run() error { return s.do(opRun) }

// Cancel ends the session with a Canceled error.
func (s *Session) Cancel() error { return s.do(opCancel) }

// Wait blocks until the session finishes and returns its final status along
// with its error, if any.
func (s *Session) Wait(ctx context.Context) (Status, error) {
	select {
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	case <-s.done:
	}
	st := s.Status()
	if st.Error != nil {
		return st, st.Error
	}
	return st, nil
}

func (s *Session) do(o op) error {
	reply := make(chan error, 1)
	if !s.mb.post(evCommand{op: o, reply: reply}) {
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) loop() {
	for range s.mb.signal {
		for _, e := range s.mb.drain() {
			if s.terminal {
				if c, ok := e.(evCommand); ok {
					c.reply <- ErrSessionClosed
				}
				continue
			}
			s.handle(e)
		}
		if s.terminal {
			return
		}
		s.publish()
	}
}

func (s *Session) handle(e interface{}) {
	switch e := e.(type) {
	case evLineSent:
		counted := s.trk != nil && s.trk.lineSent(e.line, e.source)
		if counted {
			metrics.LinesSent.Inc()
		}
		s.wire.sent(e.line, counted)
	case evLineReceived:
		s.lineReceived(e.line)
	case evPhase:
		if err := s.mon.phaseChanged(e.to); err != nil {
			s.fail(err)
			return
		}
		if s.trk != nil && s.arb.idleComplete(s.trk, e.from, e.to) {
			s.complete()
		}
	case evState:
		s.stateUpdated(e.st)
	case evDisconnected:
		s.fail(s.mon.disconnected(e.err))
	case evDispatch:
		s.dispatch(e.d)
	case evDebounce:
		if e.gen != s.debounceGen || s.stab == nil {
			return
		}
		if z, ok := s.stab.value(); ok {
			s.stabilized(z)
		}
	case evFallback:
		s.timedOut()
	case evCommand:
		e.reply <- s.command(e.op)
	}
}

// active returns true once the session has put motion on the wire.
func (s *Session) active() bool { return s.trk != nil || s.nav != nil }

func (s *Session) lineReceived(line string) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "[PRB:") {
		s.probeReport(line)
	}

	kind, _ := Classify(line)
	var counted bool
	if kind == LineOK || kind == LineError {
		counted = s.wire.answered()
	}

	if err := s.mon.lineReceived(line); err != nil {
		if kind == LineError && !s.active() {
			s.log.Warn().Str(logging.FieldLine, line).Msg("controller error before run")
			return
		}
		if err.Line == "" && s.trk != nil {
			err.Line = s.trk.pending()
		}
		s.fail(err)
		return
	}

	if !counted || s.trk == nil || !s.trk.ack() {
		return
	}
	metrics.LinesAcked.Inc()

	if d := s.waiting; d != nil {
		s.waiting = nil
		s.dispatch(d)
		if s.terminal {
			return
		}
	}
	if s.arb.ackComplete(s.trk) {
		s.complete()
	}
}

func (s *Session) probeReport(line string) {
	data := strings.TrimSuffix(strings.TrimPrefix(line, "[PRB:"), "]")
	p, err := coord.ParsePoint(strings.SplitN(data, ":", 2)[0])
	if err != nil {
		s.log.Warn().Err(err).Str(logging.FieldLine, line).Msg("parse probe report")
		return
	}
	s.probe = &p
}

// probePos returns the work position macro variables are evaluated
// against: the last probe contact if there was one, else the last sample.
func (s *Session) probePos() coord.Point {
	var wco coord.Point
	if s.sample != nil {
		wco = s.sample.WCO
	}
	if s.probe != nil {
		return s.probe.Sub(wco)
	}
	if s.sample != nil {
		return s.sample.WPos()
	}
	return coord.Point{}
}

func (s *Session) stateUpdated(st machine.State) {
	s.sample = &st

	if s.state == StateVerifying && st.ProbePin && !s.checkPassed {
		s.checkPassed = true
		s.log.Info().Msg("probe continuity check passed")
	}

	if s.stab == nil || !s.arb.dispatched {
		return
	}
	switch s.stab.sample(st.WPos().Z) {
	case stabRestart:
		s.debounceGen++
		gen := s.debounceGen
		if s.debounce != nil {
			s.debounce.Stop()
		}
		s.debounce = time.AfterFunc(s.timings.Debounce, func() { s.mb.post(evDebounce{gen: gen}) })
	case stabDisarm:
		s.debounceGen++
		if s.debounce != nil {
			s.debounce.Stop()
		}
	}
}

func (s *Session) schedule(d *dispatcher, delay time.Duration) {
	d.timer = time.AfterFunc(delay, func() { s.mb.post(evDispatch{d: d}) })
}

// dispatch sends the next line of d.
func (s *Session) dispatch(d *dispatcher) {
	if d != s.run && d != s.nav {
		// stale timer from a dispatcher that was dropped
		return
	}
	if d.done() {
		s.dispatched(d)
		return
	}

	l := d.peek()
	if l.Local() {
		// macro lines see the result of everything sent before them
		if s.trk != nil && s.trk.Acked() < d.wire {
			s.waiting = d
			return
		}
		switch vm.Classify(l.Text) {
		case vm.DirectiveAssign:
			s.vm.SetPosition(s.probePos())
			if err := s.vm.Assign(l.Text); err != nil {
				s.fail(&Error{Kind: KindConfiguration, Message: "macro: " + err.Error(), Line: l.Text})
				return
			}
		case vm.DirectiveMsg:
			s.log.Info().Str(logging.FieldLine, l.Text).Msg("macro message")
		}
		d.advance()
		s.schedule(d, s.timings.Delay(l.Class))
		return
	}

	text, err := s.vm.Expand(l.Text)
	if err != nil {
		s.fail(&Error{Kind: KindConfiguration, Message: "macro: " + err.Error(), Line: l.Text})
		return
	}
	if d == s.run && l.Stage == StageProbe && s.stab != nil && s.stab.p0 == nil && s.sample != nil {
		s.stab.setP0(s.sample.WPos().Z)
	}
	if err := s.t.SendLine(text, d.source); err != nil {
		s.fail(&Error{Kind: KindTransportLost, Message: "send failed", Line: text, Err: err})
		return
	}
	if l.counted() {
		d.wire++
	}
	d.advance()
	s.schedule(d, s.timings.Delay(l.Class))
}

func (s *Session) dispatched(d *dispatcher) {
	if d == s.nav {
		s.navConfirmed = true
		s.log.Info().Msg("navigation sent")
		return
	}
	s.arb.dispatched = true
	s.log.Debug().Int("sent", s.trk.Sent()).Int("acked", s.trk.Acked()).Msg("sequence dispatched")
	if s.arb.ackComplete(s.trk) {
		s.complete()
	}
}

func (s *Session) command(o op) error {
	if o == opCancel {
		s.fail(&Error{Kind: KindCanceled, Message: "canceled by operator"})
		return nil
	}
	if !s.state.navigable() {
		return ErrNotAllowed
	}

	steps := Steps(s.method)
	switch o {
	case opNext:
		if s.step >= runStep(s.method) {
			return ErrNotAllowed
		}
		switch steps[s.step-1] {
		case StepVerify:
			if !s.checkPassed {
				return ErrCheckPending
			}
		case StepNavigate:
			if !s.navConfirmed {
				return ErrNavigationUnconfirmed
			}
		}
		s.step++
		s.setState(stateFor(steps[s.step-1]))
	case opBack:
		if s.step > 1 {
			s.step--
		}
		s.nav.stop()
		s.nav = nil
		s.navConfirmed = false
		s.setState(stateFor(steps[s.step-1]))
	case opConfirm:
		if s.state != StateNavigating {
			return ErrNotAllowed
		}
		if s.nav == nil {
			s.nav = newDispatcher(Filter(s.lines, StageNavigate), s.tag+"/nav")
			s.dispatch(s.nav)
		}
	case opRun:
		if requireCheck(s.method) && !s.checkPassed {
			return ErrCheckPending
		}
		if _, ok := s.method.(BitSetter); ok && !s.navConfirmed {
			return ErrNavigationUnconfirmed
		}
		s.startRun()
	}
	return nil
}

func (s *Session) startRun() {
	lines := Filter(s.lines, StageProbe, StageZero)
	_, bitsetter := s.method.(BitSetter)

	s.step = runStep(s.method)
	s.trk = newTracker(s.tag, countLines(lines))
	s.arb = arbiter{stable: bitsetter, ratio: s.timings.BestEffortRatio}
	if bitsetter {
		s.stab = newStabilizer(s.timings.Epsilon)
	}
	s.ranAt = time.Now()
	s.setState(StateProbing)

	s.fallback = time.AfterFunc(s.timings.Fallback, func() { s.mb.post(evFallback{}) })
	s.run = newDispatcher(lines, s.tag)
	s.dispatch(s.run)
}

func (s *Session) timedOut() {
	if s.trk == nil {
		return
	}
	bestEffort, err := s.arb.timeout(s.trk)
	if err != nil {
		s.fail(err)
		return
	}
	if bestEffort {
		s.log.Warn().Int("sent", s.trk.Sent()).Int("acked", s.trk.Acked()).Int("total", s.trk.Total()).
			Msg("no completion signal, completing on best-effort basis")
		s.bestEffort = true
		s.complete()
	}
}

func (s *Session) stabilized(z float64) {
	s.setState(StateCapturing)

	key := calibration.ToolReferenceKey(s.ctx.CoordinateSystem)
	res := &Result{Key: key, Value: z}
	if s.rec != nil {
		prev, err := s.rec.Previous(key)
		if err != nil {
			s.log.Warn().Err(err).Str(logging.FieldKey, key).Msg("read previous reference")
		}
		if prev != nil {
			p, d := prev.Value, z-prev.Value
			res.Previous, res.Delta = &p, &d
		}
	}
	s.result = res
	s.setState(StateStoring)

	if s.rec != nil {
		err := s.rec.Record(key, z, calibration.Metadata{
			CoordinateSystem: s.ctx.CoordinateSystem,
			Method:           s.method.Name(),
			SessionID:        s.id,
			Time:             time.Now(),
		})
		if err != nil {
			s.fail(&Error{Kind: KindStorage, Message: "store tool reference", Err: err})
			return
		}
	}
	s.complete()
}

func (s *Session) setState(st State) {
	if st == s.state {
		return
	}
	s.log.Info().
		Str(logging.FieldOldStatus, string(s.state)).
		Str(logging.FieldNewStatus, string(st)).
		Int(logging.FieldStep, s.step).
		Msg("status changed")
	s.state = st
	if !st.Terminal() {
		s.publish()
	}
}

func (s *Session) complete() {
	s.step = TotalSteps(s.method)
	s.setState(StateComplete)
	s.finish()
}

func (s *Session) fail(err *Error) {
	if s.terminal {
		return
	}
	s.err = err
	s.log.Error().
		Str(logging.FieldKind, string(err.Kind)).
		Str(logging.FieldLine, err.Line).
		AnErr("cause", err.Err).
		Msg(err.Message)
	s.setState(StateError)
	s.finish()
}

// finish tears the session down. Timers are stopped and the subscription
// released before anything else can be handled.
func (s *Session) finish() {
	if s.terminal {
		return
	}
	s.terminal = true
	s.finishedAt = time.Now()

	s.run.stop()
	s.nav.stop()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	if s.fallback != nil {
		s.fallback.Stop()
	}
	s.sub.Release()
	s.mb.close()

	outcome := "complete"
	switch {
	case s.err != nil:
		outcome = string(s.err.Kind)
	case s.bestEffort:
		outcome = "best_effort"
	}
	var ran time.Duration
	if !s.ranAt.IsZero() {
		ran = s.finishedAt.Sub(s.ranAt)
	}
	metrics.RecordFinish(s.method.Name(), outcome, ran)
	s.log.Info().Str("outcome", outcome).Dur("ran", ran).Msg("session finished")

	if s.onFinish != nil {
		s.onFinish(s)
	}
	s.publish()
	close(s.done)
}

func (s *Session) snapshot() Status {
	steps := Steps(s.method)
	st := Status{
		ID:                  s.id,
		Method:              s.method.Name(),
		State:               s.state,
		Step:                s.step,
		TotalSteps:          len(steps),
		StepKind:            steps[s.step-1],
		CheckPassed:         s.checkPassed,
		NavigationConfirmed: s.navConfirmed,
		BestEffort:          s.bestEffort,
		Result:              s.result,
		Error:               s.err,
		StartedAt:           s.startedAt,
		FinishedAt:          s.finishedAt,
	}
	if s.trk != nil {
		st.Total, st.Sent, st.Acked = s.trk.Total(), s.trk.Sent(), s.trk.Acked()
	} else {
		st.Total = countLines(Filter(s.lines, StageProbe, StageZero))
	}
	return st
}

// publish refreshes the snapshot and notifies the observer if it changed.
func (s *Session) publish() {
	st := s.snapshot()
	s.mx.Lock()
	changed := st != s.status
	s.status = st
	s.mx.Unlock()
	if changed && s.observe != nil {
		s.observe(st)
	}
}
