package grbl

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mastercactapus/gprobe/machine"
)

// fakeDevice is the controller end of a pair of pipes.
type fakeDevice struct {
	hostR *io.PipeReader
	hostW *io.PipeWriter
	devR  *io.PipeReader
	devW  *io.PipeWriter

	lines chan string
}

func newFakeDevice() *fakeDevice {
	d := &fakeDevice{lines: make(chan string, 100)}
	d.hostR, d.devW = io.Pipe()
	d.devR, d.hostW = io.Pipe()
	go func() {
		defer close(d.lines)
		scan := bufio.NewScanner(d.devR)
		for scan.Scan() {
			d.lines <- scan.Text()
		}
	}()
	return d
}

func (d *fakeDevice) Read(p []byte) (int, error)  { return d.hostR.Read(p) }
func (d *fakeDevice) Write(p []byte) (int, error) { return d.hostW.Write(p) }
func (d *fakeDevice) Close() error {
	d.hostR.Close()
	d.hostW.Close()
	return nil
}

func (d *fakeDevice) reply(s string) {
	io.WriteString(d.devW, s+"\n")
}

type recorder struct {
	mx   sync.Mutex
	sent []string
	recv []string
	lost error
}

func (r *recorder) listener() machine.Listener {
	return machine.Listener{
		LineSent: func(line, source string) {
			r.mx.Lock()
			r.sent = append(r.sent, source+":"+line)
			r.mx.Unlock()
		},
		LineReceived: func(line string) {
			r.mx.Lock()
			r.recv = append(r.recv, line)
			r.mx.Unlock()
		},
		Disconnected: func(err error) {
			r.mx.Lock()
			r.lost = err
			r.mx.Unlock()
		},
	}
}

func (r *recorder) sentCount() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.sent)
}

func TestSerialTransport_SendLine(t *testing.T) {
	dev := newFakeDevice()
	tr := NewSerialTransport(dev, SerialOptions{})
	defer tr.Close()

	var rec recorder
	tr.Subscribe(rec.listener())

	require.NoError(t, tr.SendLine(" G91 ", "s1"))
	assert.Equal(t, "G91", <-dev.lines)
	dev.reply("ok")

	assert.Eventually(t, func() bool {
		rec.mx.Lock()
		defer rec.mx.Unlock()
		return len(rec.recv) == 1 && len(rec.sent) == 1
	}, time.Second, 5*time.Millisecond)
	rec.mx.Lock()
	assert.Equal(t, []string{"s1:G91"}, rec.sent)
	assert.Equal(t, []string{"ok"}, rec.recv)
	rec.mx.Unlock()
}

func TestSerialTransport_FlowControl(t *testing.T) {
	dev := newFakeDevice()
	tr := NewSerialTransport(dev, SerialOptions{})
	defer tr.Close()

	var rec recorder
	tr.Subscribe(rec.listener())

	// 61 bytes each with the newline; only two fit in the RX buffer
	line := "G0 X" + strings.Repeat("1", 56)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.SendLine(line, "s1"))
	}

	assert.Eventually(t, func() bool { return rec.sentCount() == 2 }, time.Second, 5*time.Millisecond)
	<-dev.lines
	<-dev.lines
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, rec.sentCount())

	dev.reply("ok")
	assert.Equal(t, line, <-dev.lines)
	assert.Eventually(t, func() bool { return rec.sentCount() == 3 }, time.Second, 5*time.Millisecond)
}

func TestSerialTransport_ResetReleasesBuffer(t *testing.T) {
	dev := newFakeDevice()
	tr := NewSerialTransport(dev, SerialOptions{})
	defer tr.Close()

	var rec recorder
	tr.Subscribe(rec.listener())

	line := strings.Repeat("G4 P0 ", 20)
	line = strings.TrimSpace(line)
	for i := 0; i < 2; i++ {
		require.NoError(t, tr.SendLine(line, "s1"))
	}
	<-dev.lines
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.sentCount())

	dev.reply("Grbl 1.1h ['$' for help]")
	<-dev.lines
	assert.Eventually(t, func() bool { return rec.sentCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSerialTransport_Disconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := newFakeDevice()
	tr := NewSerialTransport(dev, SerialOptions{PollInterval: time.Millisecond})

	var rec recorder
	tr.Subscribe(rec.listener())

	dev.devW.Close()
	assert.Eventually(t, func() bool {
		rec.mx.Lock()
		defer rec.mx.Unlock()
		return rec.lost != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, ErrClosed, tr.SendLine("G90", "s1"))
	assert.Equal(t, ErrClosed, tr.WriteByte('?'))
	assert.NoError(t, tr.Close())

	// drain the device side so its reader exits
	for range dev.lines {
	}
}
