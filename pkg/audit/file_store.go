package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const currentFileName = "audit.log"

// FileStore writes audit records as JSON lines with size based rotation
type FileStore struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of rotated files to keep
	logger   logrus.FieldLogger
}

// FileStoreConfig configures the file store
type FileStoreConfig struct {
	BasePath string // Base directory for audit files
	Rotate   bool   // Enable rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
	Logger   logrus.FieldLogger
}

// DefaultFileStoreConfig returns default configuration
func DefaultFileStoreConfig() FileStoreConfig {
	return FileStoreConfig{
		BasePath: "/var/lib/stockroom/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024, // 100MB
		MaxFiles: 10,
	}
}

// NewFileStore creates a new file-based audit store
func NewFileStore(config FileStoreConfig) (*FileStore, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	store := &FileStore{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		logger:   config.Logger,
	}

	if store.maxSize == 0 {
		store.maxSize = 100 * 1024 * 1024 // 100MB default
	}
	if store.maxFiles == 0 {
		store.maxFiles = 10
	}
	if store.logger == nil {
		store.logger = logrus.StandardLogger()
	}

	if err := store.openFile(); err != nil {
		return nil, err
	}

	return store, nil
}

// openFile opens or creates the current audit file
func (s *FileStore) openFile() error {
	filename := filepath.Join(s.basePath, currentFileName)

	if s.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= s.maxSize {
			if err := s.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate audit file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	s.file = file
	s.encoder = json.NewEncoder(file)

	return nil
}

// rotateFile renames the current file with a timestamp suffix
func (s *FileStore) rotateFile() error {
	currentFile := filepath.Join(s.basePath, currentFileName)

	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	// Nanosecond suffix keeps names unique and lexically ordered
	timestamp := time.Now().UTC().Format("20060102T150405.000000000")
	rotatedFile := filepath.Join(s.basePath, fmt.Sprintf("audit-%s.log", timestamp))

	if err := os.Rename(currentFile, rotatedFile); err != nil {
		return fmt.Errorf("failed to rename audit file: %w", err)
	}

	if err := s.cleanupOldFiles(); err != nil {
		s.logger.WithError(err).Warn("Failed to clean up old audit files")
	}

	return nil
}

// rotatedFiles lists rotated files, oldest first
func (s *FileStore) rotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.basePath, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// cleanupOldFiles removes rotated files beyond the retention limit
func (s *FileStore) cleanupOldFiles() error {
	files, err := s.rotatedFiles()
	if err != nil {
		return err
	}

	if len(files) > s.maxFiles {
		for _, file := range files[:len(files)-s.maxFiles] {
			if err := os.Remove(file); err != nil {
				s.logger.WithError(err).WithField("file", file).Warn("Failed to remove old audit file")
			}
		}
	}

	return nil
}

// Record appends a record to the current file
func (s *FileStore) Record(ctx context.Context, record Record) error {
	prepare(&record)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}

	if s.rotate {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
			if err := s.openFile(); err != nil {
				return fmt.Errorf("failed to rotate audit file: %w", err)
			}
		}
	}

	if err := s.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	return nil
}

// Query scans rotated files and then the current file. Async writers can
// append slightly out of timestamp order, so the limit applies after sorting.
func (s *FileStore) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.rotatedFiles()
	if err != nil {
		return nil, err
	}
	files = append(files, filepath.Join(s.basePath, currentFileName))

	records := make([]Record, 0)
	for _, name := range files {
		if err := scanFile(name, q, &records); err != nil {
			return nil, err
		}
	}

	return ordered(records, q.Limit), nil
}

// scanFile appends matching records from one file
func scanFile(name string, q Query, out *[]Record) error {
	file, err := os.Open(name)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		record, err := FromJSON(scanner.Bytes())
		if err != nil {
			return fmt.Errorf("failed to decode audit record in %s: %w", filepath.Base(name), err)
		}
		if q.Matches(record) {
			*out = append(*out, *record)
		}
	}
	return scanner.Err()
}

// Close closes the current file
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}

	return nil
}
