package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/calibration"
	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/machine"
	"github.com/mastercactapus/gprobe/probe"
)

type api struct {
	http.Handler
	t     conn
	ctrl  *probe.Controller
	store calibration.Store
	base  probe.Context
	sse   *sse.Server
	sub   *machine.Subscription
	log   zerolog.Logger
}

func newAPI(t conn, store calibration.Store, timings probe.Timings, base probe.Context) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		t:       t,
		store:   store,
		base:    base,
		log:     logging.WithComponent("api"),
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}
	a.ctrl = probe.NewController(t, probe.Config{
		Timings:  timings,
		Store:    store,
		Observer: a.sessionChanged,
	})

	r.Use(a.logRequests)

	r.HandleFunc("/api/session", a.startSession).Methods("POST")
	r.HandleFunc("/api/session", a.getSession).Methods("GET")
	r.HandleFunc("/api/session", a.cancelSession).Methods("DELETE")
	r.HandleFunc("/api/session/{op:next|back|confirm|run}", a.sessionOp).Methods("POST")

	r.HandleFunc("/api/calibration", a.listCalibration).Methods("GET")
	r.HandleFunc("/api/calibration/{key}", a.getCalibration).Methods("GET")
	r.HandleFunc("/api/calibration/{key}", a.clearCalibration).Methods("DELETE")

	r.HandleFunc("/api/machine", a.getMachine).Methods("GET")

	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/events/").Handler(a.sse)

	a.sub = t.Subscribe(machine.Listener{
		StateUpdated: func(s machine.State) { a.send("/events/state", machineState(s)) },
	})

	return a
}

// Close stops event delivery and cancels the running session, if any.
func (a *api) Close() {
	a.sub.Release()
	if err := a.ctrl.Cancel(); err != nil && err != probe.ErrSessionClosed {
		a.log.Warn().Err(err).Msg("cancel session")
	}
	a.sse.Shutdown()
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		a.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Str("remote", req.RemoteAddr).Msg("request")
		next.ServeHTTP(w, req)
	})
}

func (a *api) send(channel string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error().Err(err).Str("channel", channel).Msg("marshal event")
		return
	}
	a.sse.SendMessage(channel, sse.SimpleMessage(string(data)))
}

func (a *api) sessionChanged(s probe.Status) { a.send("/events/session", s) }

type machineStatus struct {
	Status   string     `json:"status"`
	MPos     [3]float64 `json:"mpos"`
	WPos     [3]float64 `json:"wpos"`
	ProbePin bool       `json:"probePin"`
	Busy     bool       `json:"busy"`

	// LastProbe is the machine position of the last probe contact.
	LastProbe *[3]float64 `json:"lastProbe,omitempty"`
}

func machineState(s machine.State) machineStatus {
	w := s.WPos()
	return machineStatus{
		Status:   string(s.Phase),
		MPos:     [3]float64{s.MPos.X, s.MPos.Y, s.MPos.Z},
		WPos:     [3]float64{w.X, w.Y, w.Z},
		ProbePin: s.ProbePin,
		Busy:     s.Phase.Active(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// httpError maps session and probe errors to a status code.
func (a *api) httpError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case err == probe.ErrSessionActive,
		err == probe.ErrNotAllowed,
		err == probe.ErrCheckPending,
		err == probe.ErrNavigationUnconfirmed:
		code = http.StatusConflict
	case err == probe.ErrSessionClosed:
		code = http.StatusGone
	case probe.KindOf(err) == probe.KindConfiguration:
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		a.log.Error().Err(err).Msg("request failed")
	}
	http.Error(w, err.Error(), code)
}

type startRequest struct {
	Method  json.RawMessage `json:"method"`
	Context json.RawMessage `json:"context"`
}

func (a *api) startSession(w http.ResponseWriter, req *http.Request) {
	var body startRequest
	err := json.NewDecoder(req.Body).Decode(&body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := probe.DecodeMethod(body.Method)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := a.base
	if len(body.Context) > 0 {
		if err := json.Unmarshal(body.Context, &ctx); err != nil {
			http.Error(w, errors.Wrap(err, "decode context").Error(), http.StatusBadRequest)
			return
		}
	}

	s, err := a.ctrl.Start(m, ctx)
	if err != nil {
		a.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Status())
}

func (a *api) getSession(w http.ResponseWriter, req *http.Request) {
	s := a.ctrl.Current()
	if s == nil {
		http.Error(w, "no session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (a *api) cancelSession(w http.ResponseWriter, req *http.Request) {
	s := a.ctrl.Active()
	if s == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}
	if err := s.Cancel(); err != nil {
		a.httpError(w, err)
		return
	}
	<-s.Done()
	writeJSON(w, http.StatusOK, s.Status())
}

func (a *api) sessionOp(w http.ResponseWriter, req *http.Request) {
	s := a.ctrl.Active()
	if s == nil {
		http.Error(w, "no active session", http.StatusNotFound)
		return
	}

	var err error
	switch mux.Vars(req)["op"] {
	case "next":
		err = s.Next()
	case "back":
		err = s.Back()
	case "confirm":
		err = s.ConfirmNavigation()
	case "run":
		err = s.Run()
	}
	if err != nil {
		a.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (a *api) listCalibration(w http.ResponseWriter, req *http.Request) {
	list, err := a.store.List()
	if err != nil {
		a.httpError(w, err)
		return
	}
	if list == nil {
		list = []calibration.Entry{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) getCalibration(w http.ResponseWriter, req *http.Request) {
	key := mux.Vars(req)["key"]
	e, ok, err := a.store.Get(key)
	if err != nil {
		a.httpError(w, err)
		return
	}
	if !ok {
		http.Error(w, "unknown key "+key, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *api) clearCalibration(w http.ResponseWriter, req *http.Request) {
	if err := a.store.Clear(mux.Vars(req)["key"]); err != nil {
		a.httpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getMachine(w http.ResponseWriter, req *http.Request) {
	st := machineState(a.t.State())
	if prb, ok := a.t.LastProbe(); ok && prb.Valid {
		st.LastProbe = &[3]float64{prb.X, prb.Y, prb.Z}
	}
	writeJSON(w, http.StatusOK, st)
}
