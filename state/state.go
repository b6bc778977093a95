package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FileName is the name of the state file inside the state directory.
const FileName = "extracted.jsonl"

type Tracker interface {
	AlreadyProcessed(hash string) bool
	MarkProcessed(hash, folder string) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Processed int
}

// MemoryTracker remembers which output folder each message hash went to.
type MemoryTracker struct {
	mu      sync.RWMutex
	folders map[string]string
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{folders: make(map[string]string)}
}

func (m *MemoryTracker) AlreadyProcessed(hash string) bool {
	_, ok := m.Folder(hash)
	return ok
}

// Folder returns the output folder recorded for hash.
func (m *MemoryTracker) Folder(hash string) (string, bool) {
	if hash == "" {
		return "", false
	}

	m.mu.RLock()
	folder, ok := m.folders[hash]
	m.mu.RUnlock()
	return folder, ok
}

func (m *MemoryTracker) MarkProcessed(hash, folder string) error {
	m.remember(hash, folder)
	return nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.folders)
	m.mu.RUnlock()
	return Snapshot{Processed: count}
}

// remember reports whether hash was new.
func (m *MemoryTracker) remember(hash, folder string) bool {
	if hash == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.folders[hash]; exists {
		return false
	}
	m.folders[hash] = folder
	return true
}

// FileTracker persists extracted message hashes so later runs can skip them.
type FileTracker struct {
	*MemoryTracker
	fs      afero.Fs
	path    string
	persist bool
	writer  *bufio.Writer
	file    afero.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Hash   string `json:"hash"`
	Folder string `json:"folder"`
}

// NewFileTracker loads stateDir/extracted.jsonl from fs. With persist set,
// new records are appended to the same file.
func NewFileTracker(fs afero.Fs, stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := fs.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		fs:            fs,
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := fs.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		tracker.file = file
		tracker.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return tracker, nil
}

// Path is the location of the state file.
func (f *FileTracker) Path() string {
	return f.path
}

func (f *FileTracker) load() error {
	file, err := f.fs.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		f.remember(record.Hash, record.Folder)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

func (f *FileTracker) MarkProcessed(hash, folder string) error {
	if !f.remember(hash, folder) || !f.persist {
		return nil
	}

	data, err := json.Marshal(fileRecord{Hash: hash, Folder: folder})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	return nil
}

// Flush writes any buffered records to the state file.
func (f *FileTracker) Flush() error {
	if !f.persist || f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil
	return firstErr
}
