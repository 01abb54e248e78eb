// Package spjs is a client for the Serial Port JSON Server websocket API.
package spjs

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/logging"
)

// ErrClosed is returned when writing to a closed client.
var ErrClosed = errors.New("spjs: closed")

// RetryDelay is the pause between reconnect attempts.
var RetryDelay = 3 * time.Second

type SPJS struct {
	url string
	log zerolog.Logger

	outgoing  chan message
	incomming chan interface{}

	closeCh chan struct{}
	once    sync.Once
}

type message struct {
	done    chan error
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
	Port       string   `json:"P"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name                      string
	Friendly                  string
	SerialNumber              string
	DeviceClass               string
	IsOpen                    bool
	IsPrimary                 bool
	RelatedNames              []string
	Baud                      int
	BufferAlgorithm           string
	AvailableBufferAlgorithms []string
	Ver                       float64
	USBVID                    string
	USBPID                    string
	FeedRateOverride          float64
}

// Disconnected is delivered when the websocket connection drops.
// The client reconnects on its own unless closed.
type Disconnected struct {
	Err error
}

// Connected is delivered each time the websocket connection is (re)established.
type Connected struct{}

func NewSPJS(url string) *SPJS {
	sp := &SPJS{
		url:       url,
		log:       logging.WithComponent("spjs").With().Str(logging.FieldURL, url).Logger(),
		outgoing:  make(chan message, 1000),
		incomming: make(chan interface{}, 1000),
		closeCh:   make(chan struct{}),
	}

	go sp.loop()

	return sp
}

// Messages returns decoded server messages along with Connected and
// Disconnected notifications.
func (sp *SPJS) Messages() chan interface{} {
	return sp.incomming
}

// Close stops reconnecting and drops the current connection.
func (sp *SPJS) Close() error {
	sp.once.Do(func() { close(sp.closeCh) })
	return nil
}

func (sp *SPJS) deliver(v interface{}) {
	select {
	case sp.incomming <- v:
	case <-sp.closeCh:
	}
}

func parseSPJSMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.Errorf("unknown message: %s", data)
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			done <- errors.Wrap(err, "read")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			sp.log.Warn().Err(err).Msg("decode message")
			continue
		}
		val, err := parseSPJSMessage(data, msg)
		if err != nil {
			sp.log.Debug().Err(err).Msg("parse message")
			continue
		}
		sp.deliver(val)
	}
}

func (sp *SPJS) sleep() bool {
	select {
	case <-sp.closeCh:
		return false
	case <-time.After(RetryDelay):
		return true
	}
}

func (sp *SPJS) loop() {
	defer func() {
		// fail anything still waiting
		for {
			select {
			case m := <-sp.outgoing:
				m.done <- ErrClosed
			default:
				return
			}
		}
	}()

	for {
		select {
		case <-sp.closeCh:
			return
		default:
		}

		sp.log.Info().Msg("connecting")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			sp.log.Error().Err(err).Msg("connect")
			if !sp.sleep() {
				return
			}
			continue
		}
		sp.log.Info().Msg("connected")

		err = sp.serve(ws)
		ws.Close()
		if err == nil {
			return
		}
		sp.log.Error().Err(err).Msg("connection lost")
		sp.deliver(Disconnected{Err: err})
		if !sp.sleep() {
			return
		}
	}
}

// serve pumps outgoing messages until the connection fails (non-nil error)
// or the client is closed (nil).
func (sp *SPJS) serve(ws *websocket.Conn) error {
	readErr := make(chan error, 1)
	go sp.readLoop(ws, readErr)

	sp.deliver(Connected{})
	// refresh list on reconnect
	if err := ws.WriteMessage(websocket.TextMessage, []byte("list")); err != nil {
		return errors.Wrap(err, "send")
	}

	for {
		select {
		case <-sp.closeCh:
			return nil
		case err := <-readErr:
			return err
		case m := <-sp.outgoing:
			err := ws.WriteMessage(websocket.TextMessage, m.payload)
			if err != nil {
				err = errors.Wrap(err, "send")
				m.done <- err
				return err
			}
			m.done <- nil
		}
	}
}

type JSON struct {
	Port string `json:"P"`
	Data []Data
}
type Data struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

// SendJSON writes a `sendjson` command and waits for it to reach the server.
func (sp *SPJS) SendJSON(v JSON) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "sendjson (marshal)")
	}
	return sp.write(append([]byte("sendjson "), data...))
}

// WriteString writes a raw command such as `list` or `open <port> grbl 115200`.
func (sp *SPJS) WriteString(data string) error {
	return sp.write([]byte(data))
}

func (sp *SPJS) write(payload []byte) error {
	ch := make(chan error, 1)
	select {
	case <-sp.closeCh:
		return ErrClosed
	case sp.outgoing <- message{done: ch, payload: payload}:
	}
	select {
	case <-sp.closeCh:
		return ErrClosed
	case err := <-ch:
		return err
	}
}
