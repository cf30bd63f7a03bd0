package db

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"go.uber.org/zap"
)

type Backend string

const (
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"

	// Subdirectory of the data directory holding the badger database.
	badgerDir = "db"
)

// Stores holds one ProcessedSet per dedup domain.
type Stores struct {
	sets     map[common.DedupDomain]ProcessedSet
	database *Database
}

func (s *Stores) Get(domain common.DedupDomain) (ProcessedSet, bool) {
	set, ok := s.sets[domain]
	return set, ok
}

// Database returns the badger handle, or nil for the file backend.
func (s *Stores) Database() *Database {
	return s.database
}

func (s *Stores) Close() error {
	var errs []error
	for _, set := range s.sets {
		errs = append(errs, set.Close())
	}
	if s.database != nil {
		errs = append(errs, s.database.Close())
	}
	return errors.Join(errs...)
}

// NewStores wraps already opened sets. Mostly useful in tests.
func NewStores(sets ...ProcessedSet) *Stores {
	s := &Stores{sets: make(map[common.DedupDomain]ProcessedSet, len(sets))}
	for _, set := range sets {
		s.sets[set.Domain()] = set
	}
	return s
}

// OpenStores opens the dedup store of every domain below dataDir, creating the directories it needs.
func OpenStores(logger *zap.Logger, backend Backend, dataDir string) (*Stores, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if backend == BackendBadger {
		if err := os.MkdirAll(path.Join(dataDir, badgerDir), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return openStores(logger, backend, dataDir)
}

// OpenExistingStores is OpenStores for inspection tools: the store directory must already exist and is never
// created.
func OpenExistingStores(logger *zap.Logger, backend Backend, dataDir string) (*Stores, error) {
	dir := dataDir
	if backend == BackendBadger {
		dir = path.Join(dataDir, badgerDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("no %s dedup stores in %s: %w", backend, dataDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return openStores(logger, backend, dataDir)
}

func openStores(logger *zap.Logger, backend Backend, dataDir string) (*Stores, error) {
	stores := &Stores{sets: make(map[common.DedupDomain]ProcessedSet, len(common.AllDomains))}

	switch backend {
	case BackendFile:
		for _, domain := range common.AllDomains {
			set, err := OpenFileStore(domain, path.Join(dataDir, FileName(domain)))
			if err != nil {
				return nil, err
			}
			stores.sets[domain] = set
		}
	case BackendBadger:
		database, err := Open(path.Join(dataDir, badgerDir))
		if err != nil {
			return nil, err
		}
		stores.database = database
		for _, domain := range common.AllDomains {
			stores.sets[domain] = database.ProcessedSet(domain)
		}
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", backend)
	}

	for _, domain := range common.AllDomains {
		ids, err := stores.sets[domain].IDs()
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		logger.Info("loaded dedup store",
			zap.String("backend", string(backend)),
			zap.String("domain", string(domain)),
			zap.Int("entries", len(ids)))
	}

	return stores, nil
}
