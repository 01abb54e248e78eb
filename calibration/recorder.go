package calibration

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/metrics"
)

// Recorder is the only writer a probe session uses. It allows a single
// successful write for its lifetime.
type Recorder struct {
	store Store
	log   zerolog.Logger

	mx      sync.Mutex
	written bool
}

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s, log: logging.WithComponent("calibration")}
}

// Previous returns the entry currently stored at key, if any.
func (r *Recorder) Previous(key string) (*Entry, error) {
	e, ok, err := r.store.Get(key)
	if err != nil {
		return nil, errors.Wrap(err, "read "+key)
	}
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Record writes value at key. Any call after the first successful one
// returns ErrAlreadyRecorded without touching the store.
func (r *Recorder) Record(key string, value float64, md Metadata) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.written {
		return ErrAlreadyRecorded
	}

	err := r.store.Set(key, value, md)
	if err != nil {
		return errors.Wrap(err, "write "+key)
	}
	r.written = true
	metrics.RecordCalibrationWrite(key)
	r.log.Info().Str(logging.FieldKey, key).Float64("value", value).Str(logging.FieldSessionID, md.SessionID).Msg("calibration stored")
	return nil
}

// Written returns true once Record has succeeded.
func (r *Recorder) Written() bool {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.written
}
