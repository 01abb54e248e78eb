package grbl

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/machine"
)

// bufferSize is the Grbl serial RX buffer.
const bufferSize = 128

var (
	// ErrClosed is returned from SendLine after the transport has been closed.
	ErrClosed = errors.New("grbl: transport closed")

	// ErrQueueFull is returned when too many lines are waiting to be written.
	ErrQueueFull = errors.New("grbl: send queue full")
)

// SerialOptions configure a SerialTransport.
type SerialOptions struct {
	// PollInterval is how often `?` is written. Zero disables polling.
	PollInterval time.Duration

	// QueueSize bounds the number of lines waiting for buffer space.
	QueueSize int
}

type outLine struct {
	data   string
	source string
}

// SerialTransport is a direct connection to a Grbl controller.
//
// Lines are written using character-counting flow control: a line is only
// written once the controller's RX buffer has room for it, and room is
// reclaimed as `ok` / `error:` responses arrive.
type SerialTransport struct {
	hub machine.Hub
	r   *router
	rw  io.ReadWriter
	log zerolog.Logger

	queue    chan outLine
	ackCh    chan struct{}
	closeCh  chan struct{}
	once     sync.Once
	failOnce sync.Once
	wMx      sync.Mutex

	mx        sync.Mutex
	deviceBuf int
	lineSize  []int
}

var _ machine.Transport = &SerialTransport{}

// NewSerialTransport creates a new SerialTransport using the provided ReadWriter for data.
func NewSerialTransport(rw io.ReadWriter, opts SerialOptions) *SerialTransport {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	t := &SerialTransport{
		rw:      rw,
		log:     logging.WithComponent("grbl-serial"),
		queue:   make(chan outLine, opts.QueueSize),
		ackCh:   make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
	t.r = newRouter(&t.hub, t.log)

	go t.readLoop()
	go t.writeLoop()
	if opts.PollInterval > 0 {
		go t.pollLoop(opts.PollInterval)
	}
	return t
}

// Subscribe registers event taps.
func (t *SerialTransport) Subscribe(l machine.Listener) *machine.Subscription {
	return t.hub.Subscribe(l)
}

// State returns the last status report.
func (t *SerialTransport) State() machine.State { return t.r.State() }

// LastProbe returns the most recent `[PRB:...]` report.
func (t *SerialTransport) LastProbe() (ProbeReport, bool) { return t.r.LastProbe() }

// SendLine queues a line for writing and returns immediately.
func (t *SerialTransport) SendLine(line, source string) error {
	line = strings.TrimSpace(line)
	select {
	case <-t.closeCh:
		return ErrClosed
	default:
	}
	select {
	case t.queue <- outLine{data: line, source: source}:
		return nil
	case <-t.closeCh:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// WriteByte will write directly to the serial device without
// accounting for buffering.
//
// Use for realtime commands like `?`.
func (t *SerialTransport) WriteByte(p byte) (err error) {
	select {
	case <-t.closeCh:
		return ErrClosed
	default:
	}
	t.wMx.Lock()
	_, err = t.rw.Write([]byte{p})
	t.wMx.Unlock()
	return err
}

// Close will abort any queued writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (t *SerialTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closeCh)
		if closer, ok := t.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (t *SerialTransport) fail(err error) {
	select {
	case <-t.closeCh:
		return
	default:
	}
	t.failOnce.Do(func() {
		t.log.Error().Err(err).Msg("connection lost")
		t.hub.Disconnected(err)
		t.Close()
	})
}

func (t *SerialTransport) hasBufferSpace(n int) bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return len(t.lineSize) == 0 || t.deviceBuf+n <= bufferSize
}

func (t *SerialTransport) recordBufferSpace(n int) {
	t.mx.Lock()
	t.deviceBuf += n
	t.lineSize = append(t.lineSize, n)
	t.mx.Unlock()
}

func (t *SerialTransport) releaseBufferSpace() {
	t.mx.Lock()
	if len(t.lineSize) > 0 {
		t.deviceBuf -= t.lineSize[0]
		t.lineSize = t.lineSize[1:]
	}
	t.mx.Unlock()

	select {
	case t.ackCh <- struct{}{}:
	default:
	}
}

func (t *SerialTransport) resetBufferSpace() {
	t.mx.Lock()
	t.deviceBuf = 0
	t.lineSize = nil
	t.mx.Unlock()

	select {
	case t.ackCh <- struct{}{}:
	default:
	}
}

func (t *SerialTransport) writeLoop() {
	for {
		var l outLine
		select {
		case <-t.closeCh:
			return
		case l = <-t.queue:
		}

		data := l.data + "\n"
		for !t.hasBufferSpace(len(data)) {
			select {
			case <-t.closeCh:
				return
			case <-t.ackCh:
			}
		}

		// the reply can arrive before the write returns
		t.recordBufferSpace(len(data))
		t.hub.LineSent(l.data, l.source)

		t.wMx.Lock()
		_, err := io.WriteString(t.rw, data)
		t.wMx.Unlock()
		if err != nil {
			t.fail(errors.Wrap(err, "write line"))
			return
		}
	}
}

func (t *SerialTransport) readLoop() {
	scan := bufio.NewScanner(t.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		switch {
		case line == "ok", strings.HasPrefix(line, "error:"):
			t.releaseBufferSpace()
		case strings.HasPrefix(line, "Grbl "):
			// soft-reset flushes the controller buffer
			t.resetBufferSpace()
		}
		t.r.handleLine(line)
	}

	err := scan.Err()
	if err == nil {
		err = io.EOF
	}
	t.fail(errors.Wrap(err, "read"))
}

func (t *SerialTransport) pollLoop(interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-t.closeCh:
			return
		case <-tick.C:
			if err := t.WriteByte('?'); err != nil {
				t.log.Warn().Err(err).Msg("status poll")
			}
		}
	}
}
