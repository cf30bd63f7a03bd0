package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
)

// FileStore keeps one domain as a JSON array of identifiers. Every Record rewrites the whole file through a temp
// file and a rename, so a crash leaves either the old or the new set on disk, never a torn one.
type FileStore struct {
	domain common.DedupDomain
	path   string

	mu    sync.RWMutex
	ids   []string
	index map[string]struct{}
}

// FileName returns the file used for a domain inside the data directory.
func FileName(domain common.DedupDomain) string {
	return fmt.Sprintf("processed_%s.json", domain)
}

// OpenFileStore loads the set stored at path. A missing file is an empty set.
func OpenFileStore(domain common.DedupDomain, path string) (*FileStore, error) {
	s := &FileStore{
		domain: domain,
		path:   path,
		index:  make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, &DBError{Op: OpLoad, Domain: domain, Err: err}
	}
	if len(data) == 0 {
		return s, nil
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, &DBError{Op: OpLoad, Domain: domain, Err: fmt.Errorf("malformed %s: %w", path, err)}
	}
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}

	return s, nil
}

func (s *FileStore) Domain() common.DedupDomain {
	return s.domain
}

func (s *FileStore) Contains(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok, nil
}

func (s *FileStore) Record(id string) error {
	if id == "" {
		return &DBError{Op: OpUpdate, Domain: s.domain, Err: ErrEmptyID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; ok {
		return nil
	}

	next := append(s.ids[:len(s.ids):len(s.ids)], id)
	if err := s.writeLocked(next); err != nil {
		recordErrorsTotal.WithLabelValues(string(s.domain)).Inc()
		return &DBError{Op: OpUpdate, Domain: s.domain, Key: []byte(id), Err: err}
	}

	s.ids = next
	s.index[id] = struct{}{}
	processedRecordsTotal.WithLabelValues(string(s.domain)).Inc()
	return nil
}

func (s *FileStore) writeLocked(ids []string) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}

	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (s *FileStore) IDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
