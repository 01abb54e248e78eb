package grbl

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/spjs"
)

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSClient is the part of *spjs.SPJS used by SPJSTransport.
type SPJSClient interface {
	Messages() chan interface{}
	SendJSON(spjs.JSON) error
	WriteString(string) error
}

var _ SPJSClient = &spjs.SPJS{}

// SPJSTransport talks to a Grbl controller attached to a Serial Port JSON Server.
//
// The server does its own flow control, so lines are forwarded as soon as
// they are queued.
type SPJSTransport struct {
	hub  machine.Hub
	r    *router
	sp   SPJSClient
	port string
	baud int
	log  zerolog.Logger

	queue   chan outLine
	closeCh chan struct{}
	once    sync.Once

	// sendMx is held across a send and its LineSent; replies are routed under it.
	sendMx sync.Mutex
}

var _ machine.Transport = &SPJSTransport{}

// NewSPJSTransport starts routing messages for port. The port is opened
// at baud if the server reports it closed.
func NewSPJSTransport(sp SPJSClient, port string, baud int) *SPJSTransport {
	if baud == 0 {
		baud = 115200
	}
	t := &SPJSTransport{
		sp:      sp,
		port:    port,
		baud:    baud,
		log:     logging.WithComponent("grbl-spjs").With().Str(logging.FieldPort, port).Logger(),
		queue:   make(chan outLine, 1000),
		closeCh: make(chan struct{}),
	}
	t.r = newRouter(&t.hub, t.log)

	go t.readLoop()
	go t.writeLoop()
	return t
}

func (t *SPJSTransport) Subscribe(l machine.Listener) *machine.Subscription {
	return t.hub.Subscribe(l)
}

// State returns the last status report.
func (t *SPJSTransport) State() machine.State { return t.r.State() }

// LastProbe returns the most recent `[PRB:...]` report.
func (t *SPJSTransport) LastProbe() (ProbeReport, bool) { return t.r.LastProbe() }

// SendLine queues a line and returns immediately.
func (t *SPJSTransport) SendLine(line, source string) error {
	select {
	case <-t.closeCh:
		return ErrClosed
	default:
	}
	select {
	case t.queue <- outLine{data: strings.TrimSpace(line), source: source}:
		return nil
	default:
		return ErrQueueFull
	}
}

// WriteByte sends a single-character command such as `?`.
func (t *SPJSTransport) WriteByte(b byte) error {
	return t.SendLine(string(b), "")
}

// Close stops routing. The SPJS client itself is left open.
func (t *SPJSTransport) Close() error {
	t.once.Do(func() { close(t.closeCh) })
	return nil
}

func (t *SPJSTransport) writeLoop() {
	for {
		var l outLine
		select {
		case <-t.closeCh:
			return
		case l = <-t.queue:
		}

		t.sendMx.Lock()
		err := t.sp.SendJSON(spjs.JSON{
			Port: t.port,
			Data: []spjs.Data{{Data: l.data + "\n", ID: nextID()}},
		})
		if err == nil {
			t.hub.LineSent(l.data, l.source)
		}
		t.sendMx.Unlock()
		if err != nil {
			t.log.Error().Err(err).Str(logging.FieldLine, l.data).Msg("send")
			t.hub.Disconnected(errors.Wrap(err, "send"))
		}
	}
}

func (t *SPJSTransport) readLoop() {
	msgs := t.sp.Messages()
	for {
		var resp interface{}
		select {
		case <-t.closeCh:
			return
		case resp = <-msgs:
		}

		switch msg := resp.(type) {
		case *spjs.DataFrame:
			if msg.Port != "" && msg.Port != t.port {
				continue
			}
			t.sendMx.Lock()
			for _, line := range strings.Split(msg.Data, "\n") {
				t.r.handleLine(line)
			}
			t.sendMx.Unlock()
		case *spjs.CmdStatus:
			if msg.Port != "" && msg.Port != t.port {
				continue
			}
			switch msg.Cmd {
			case "WipedQueue":
				t.hub.Disconnected(errors.New("spjs: wiped queue"))
			case "Close":
				t.hub.Disconnected(errors.New("spjs: port closed"))
			}
		case *spjs.SerialPortList:
			for _, port := range msg.SerialPorts {
				if port.Name != t.port || port.IsOpen {
					continue
				}
				go func() {
					err := t.sp.WriteString("open " + t.port + " grbl " + strconv.Itoa(t.baud))
					if err != nil {
						t.log.Error().Err(err).Msg("open port")
					}
				}()
			}
		case *spjs.ErrorMessage:
			t.log.Warn().Str("error", msg.Error).Msg("server error")
		case spjs.Disconnected:
			t.hub.Disconnected(errors.Wrap(msg.Err, "spjs"))
		}
	}
}
