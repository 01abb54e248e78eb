// Package calibration persists derived probe results such as tool-length references.
package calibration

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrAlreadyRecorded is returned by a Recorder that has already written its entry.
var ErrAlreadyRecorded = errors.New("calibration: entry already recorded")

// ToolReferenceKey returns the key of the tool-length reference for a work coordinate system.
func ToolReferenceKey(wcs string) string { return "toolReference." + wcs }

// Metadata describes where a value came from.
type Metadata struct {
	CoordinateSystem string    `json:"coordinateSystem"`
	Method           string    `json:"method,omitempty"`
	SessionID        string    `json:"sessionId,omitempty"`
	Time             time.Time `json:"timestamp"`
}

// Entry is one stored value. Later writes to the same key supersede earlier ones.
type Entry struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Metadata
}

// A Store holds calibration entries by key.
//
// A cleared key reads as unknown (ok == false), which is distinct from a
// stored zero.
type Store interface {
	Get(key string) (e Entry, ok bool, err error)
	Set(key string, value float64, md Metadata) error
	Clear(key string) error
	List() ([]Entry, error)
}

func sortEntries(list []Entry) []Entry {
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mx sync.RWMutex
	m  map[string]Entry
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	e, ok := s.m[key]
	return e, ok, nil
}

func (s *MemoryStore) Set(key string, value float64, md Metadata) error {
	s.mx.Lock()
	s.m[key] = Entry{Key: key, Value: value, Metadata: md}
	s.mx.Unlock()
	return nil
}

func (s *MemoryStore) Clear(key string) error {
	s.mx.Lock()
	delete(s.m, key)
	s.mx.Unlock()
	return nil
}

func (s *MemoryStore) List() ([]Entry, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	list := make([]Entry, 0, len(s.m))
	for _, e := range s.m {
		list = append(list, e)
	}
	return sortEntries(list), nil
}
