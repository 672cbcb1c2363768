package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gmsas95/dosetrack/internal/meds"
)

// FileStore keeps the whole tracker state in a single YAML document. It
// backs the "file" storage backend and the CLI export/import commands.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileDocument struct {
	Medications []meds.Medication   `yaml:"medications"`
	History     []meds.DoseLogEntry `yaml:"history"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) read() (*fileDocument, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &fileDocument{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return &doc, nil
}

func (f *FileStore) write(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	// Write-then-rename so a crash never truncates the live file.
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Load() ([]meds.Medication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.Medications, nil
}

func (f *FileStore) Save(list []meds.Medication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Medications = list
	return f.write(doc)
}

func (f *FileStore) AppendHistory(entry meds.DoseLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.History = append([]meds.DoseLogEntry{entry}, doc.History...)
	return f.write(doc)
}

func (f *FileStore) LoadHistory() ([]meds.DoseLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return nil, err
	}
	return doc.History, nil
}
