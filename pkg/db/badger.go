package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/dgraph-io/badger/v3"
)

// Database wraps a badger instance shared by the dedup domains. Each domain lives under its own key prefix.
type Database struct {
	db *badger.DB
}

// Open opens (or creates) a badger database at path. Writes are synced before they are acknowledged.
func Open(path string) (*Database, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Compact runs value log garbage collection until there is nothing left to rewrite.
func (d *Database) Compact() error {
	for {
		err := d.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

const processedPrefix = "PROCESSED:V1:"

// BadgerStore is a ProcessedSet backed by badger. It is the append-only alternative to FileStore: a Record writes
// one key instead of rewriting the set.
type BadgerStore struct {
	d      *Database
	domain common.DedupDomain
	prefix []byte
}

func (d *Database) ProcessedSet(domain common.DedupDomain) *BadgerStore {
	return &BadgerStore{
		d:      d,
		domain: domain,
		prefix: []byte(fmt.Sprintf("%s%s:", processedPrefix, domain)),
	}
}

func (s *BadgerStore) key(id string) []byte {
	return fmt.Appendf(nil, "%s%s", s.prefix, id)
}

func (s *BadgerStore) Domain() common.DedupDomain {
	return s.domain
}

func (s *BadgerStore) Contains(id string) (bool, error) {
	key := s.key(id)
	err := s.d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &DBError{Op: OpRead, Domain: s.domain, Key: key, Err: err}
	}
	return true, nil
}

func (s *BadgerStore) Record(id string) error {
	if id == "" {
		return &DBError{Op: OpUpdate, Domain: s.domain, Err: ErrEmptyID}
	}

	key := s.key(id)
	value := []byte(time.Now().UTC().Format(time.RFC3339))
	err := s.d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		recordErrorsTotal.WithLabelValues(string(s.domain)).Inc()
		return &DBError{Op: OpUpdate, Domain: s.domain, Key: key, Err: err}
	}

	processedRecordsTotal.WithLabelValues(string(s.domain)).Inc()
	return nil
}

func (s *BadgerStore) IDs() ([]string, error) {
	var ids []string
	err := s.d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), string(s.prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, &DBError{Op: OpRead, Domain: s.domain, Err: err}
	}
	return ids, nil
}

// Close is a no-op; the shared Database is closed by its owner.
func (s *BadgerStore) Close() error {
	return nil
}
