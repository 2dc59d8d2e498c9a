package order

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"xswap/pkg/types"
)

const (
	DefaultStorageFileName = ".xswap-orders.json"
)

// FileStore persists order records in a single JSON file
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	orders   map[string]*types.OrderRecord
}

// fileContents represents the JSON structure for storage
type fileContents struct {
	Orders map[string]*types.OrderRecord `json:"orders"`
}

// NewFileStore creates a new storage instance
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		// Default to home directory
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &FileStore{
		filePath: filePath,
		orders:   make(map[string]*types.OrderRecord),
	}

	// Load existing records if file exists
	if err := storage.load(); err != nil {
		// If file doesn't exist, that's okay - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load orders: %w", err)
		}
	}

	return storage, nil
}

// load reads records from the storage file
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("failed to unmarshal orders: %w", err)
	}

	s.orders = contents.Orders
	if s.orders == nil {
		s.orders = make(map[string]*types.OrderRecord)
	}

	return nil
}

// saveLocked writes records to the storage file; caller holds s.mu
func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(fileContents{Orders: s.orders}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal orders: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temporary file first, then rename for atomic write
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write orders: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Create adds a new record to storage
func (s *FileStore) Create(rec *types.OrderRecord) error {
	key := rec.Key()
	if key == "" {
		return ErrNoKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}

	s.orders[key] = rec.Clone()
	if err := s.saveLocked(); err != nil {
		delete(s.orders, key)
		return err
	}
	return nil
}

// Get retrieves a record by order hash or id
func (s *FileStore) Get(key string) (*types.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.orders[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return rec.Clone(), nil
}

// Update replaces an existing record
func (s *FileStore) Update(rec *types.OrderRecord) error {
	key := rec.Key()
	if key == "" {
		return ErrNoKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.orders[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	s.orders[key] = rec.Clone()
	if err := s.saveLocked(); err != nil {
		s.orders[key] = prev
		return err
	}
	return nil
}

// Delete removes a record from storage
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.orders[key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	delete(s.orders, key)
	if err := s.saveLocked(); err != nil {
		s.orders[key] = prev
		return err
	}
	return nil
}

// List returns matching records, newest first
func (s *FileStore) List(filter Filter) ([]*types.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*types.OrderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		if filter.Match(rec) {
			records = append(records, rec.Clone())
		}
	}

	sortNewestFirst(records)
	return records, nil
}

// GetFilePath returns the storage file path
func (s *FileStore) GetFilePath() string {
	return s.filePath
}

func sortNewestFirst(records []*types.OrderRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Key() < records[j].Key()
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
