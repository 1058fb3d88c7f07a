package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNoDatabase indicates the named database was not configured
	ErrNoDatabase = errors.New("database does not exist")

	// ErrExists indicates a create collided with an existing document
	ErrExists = errors.New("document already exists")
)

// DocumentStore keeps JSON documents in one BoltDB bucket per database.
// With no path it runs memory-only.
type DocumentStore struct {
	db        *bolt.DB
	databases map[string]bool

	writeMu sync.Mutex   // serializes check-then-write sequences
	mu      sync.RWMutex // protects cache

	// In-memory cache for hot-path reads (promoted on access).
	// In memory-only mode it is the whole store.
	cache map[string][]byte
}

// NewDocumentStore opens (or creates) the store at path with the given databases
func NewDocumentStore(path string, databases []string) (*DocumentStore, error) {
	if len(databases) == 0 {
		return nil, fmt.Errorf("at least one database is required")
	}
	s := &DocumentStore{
		databases: make(map[string]bool, len(databases)),
		cache:     make(map[string][]byte),
	}
	for _, name := range databases {
		s.databases[name] = true
	}

	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// One bucket per database
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range databases {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	return s, nil
}

// Close releases the bolt file; a memory-only store has nothing to close
func (s *DocumentStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HasDatabase reports whether name is a configured database
func (s *DocumentStore) HasDatabase(name string) bool {
	return s.databases[name]
}

// Get returns the raw document stored under id
func (s *DocumentStore) Get(database, id string) ([]byte, bool, error) {
	if !s.HasDatabase(database) {
		return nil, false, ErrNoDatabase
	}
	cacheKey := database + ":" + id

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return data, true, nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(database))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(id)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return data, true, nil
}

// Insert stores a new document; it fails with ErrExists if id is taken
func (s *DocumentStore) Insert(database, id string, doc []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, exists, err := s.Get(database, id)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	return s.set(database, id, doc)
}

// Put stores doc under id, replacing any previous version. created
// reports whether the document is new.
func (s *DocumentStore) Put(database, id string, doc []byte) (created bool, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, exists, err := s.Get(database, id)
	if err != nil {
		return false, err
	}
	if err := s.set(database, id, doc); err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *DocumentStore) set(database, id string, doc []byte) error {
	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(database))
			if b == nil {
				return ErrNoDatabase
			}
			return b.Put([]byte(id), doc)
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.cache[database+":"+id] = doc
	s.mu.Unlock()
	return nil
}
