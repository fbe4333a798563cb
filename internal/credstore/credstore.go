// Package credstore defines the scoped credential store boundary and a
// file-backed implementation. Records persist until explicitly removed;
// expiry policy belongs to the store, not its consumers.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no record exists under the given key.
var ErrNotFound = errors.New("credential record not found")

// Record is one persisted credential: a principal id and its secret or
// ticket value.
type Record struct {
	ID        string    `json:"id"`
	Principal string    `json:"principal"`
	Secret    string    `json:"secret"`
	SavedAt   time.Time `json:"saved_at"`
}

// NewRecord builds a record for the given principal/secret pair.
func NewRecord(principal, secret string) Record {
	return Record{
		ID:        uuid.NewString(),
		Principal: principal,
		Secret:    secret,
		SavedAt:   time.Now().UTC(),
	}
}

// Store is the credential store contract.
type Store interface {
	Get(key string) (Record, error)
	Put(key string, record Record) error
	Delete(key string) error
}

// FileStore persists records as JSON files under a directory, one file
// per storage key.
type FileStore struct {
	dir string
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the record stored under key.
func (s *FileStore) Get(key string) (Record, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read credential record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decode credential record: %w", err)
	}
	return record, nil
}

// Put writes the record under key.
func (s *FileStore) Put(key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode credential record: %w", err)
	}
	if err := os.WriteFile(s.path(key), data, 0o600); err != nil {
		return fmt.Errorf("write credential record: %w", err)
	}
	return nil
}

// Delete removes the record under key. Deleting a missing record is not
// an error.
func (s *FileStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credential record: %w", err)
	}
	return nil
}

// Memory is an in-process store used by tests and ephemeral clients.
type Memory struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

// Get implements Store.
func (m *Memory) Get(key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Put implements Store.
func (m *Memory) Put(key string, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = record
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
