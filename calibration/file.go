package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// FileStore keeps all entries in a single JSON document that is replaced
// atomically on every change.
type FileStore struct {
	path string

	mx sync.Mutex
}

var _ Store = &FileStore{}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (map[string]Entry, error) {
	m := make(map[string]Entry)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read calibration file")
	}
	if len(data) == 0 {
		return m, nil
	}
	err = json.Unmarshal(data, &m)
	if err != nil {
		return nil, errors.Wrap(err, "decode calibration file")
	}
	return m, nil
}

func (s *FileStore) save(m map[string]Entry) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode calibration file")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create calibration dir")
	}

	pf, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.Wrap(err, "create pending calibration file")
	}
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return errors.Wrap(err, "write calibration file")
	}
	return errors.Wrap(pf.CloseAtomicallyReplace(), "replace calibration file")
}

func (s *FileStore) Get(key string) (Entry, bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	m, err := s.load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := m[key]
	return e, ok, nil
}

func (s *FileStore) Set(key string, value float64, md Metadata) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	m[key] = Entry{Key: key, Value: value, Metadata: md}
	return s.save(m)
}

func (s *FileStore) Clear(key string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.save(m)
}

func (s *FileStore) List() ([]Entry, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	m, err := s.load()
	if err != nil {
		return nil, err
	}
	list := make([]Entry, 0, len(m))
	for _, e := range m {
		list = append(list, e)
	}
	return sortEntries(list), nil
}
