package integration

import (
	"encoding/json"
	"fmt"
	"log"
	"maps"
	"net/http"
	"os"
	"sync"
	"time"
)

// missingLogTimeFormat keys entries by wall-clock time of logging
const missingLogTimeFormat = "2006-01-02 15:04:05.000000000"

// MissingLog records plant ids the API could not serve. Entries are keyed by
// the time they were logged; two entries with the same key overwrite each other.
type MissingLog struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
	now     func() time.Time
}

// NewMissingLog creates a log that is written to path after every entry.
// An empty path keeps the log in memory only.
func NewMissingLog(path string) *MissingLog {
	return &MissingLog{
		path:    path,
		entries: make(map[string]string),
		now:     time.Now,
	}
}

// Record adds an entry for plantID describing the failing status code
func (m *MissingLog) Record(plantID, status int) {
	var msg string
	switch {
	case status == http.StatusNotFound:
		msg = fmt.Sprintf("Data not found for plant_id %d, %d", plantID, status)
	case status >= http.StatusInternalServerError:
		msg = fmt.Sprintf("Server error for plant_id %d, %d", plantID, status)
	default:
		msg = fmt.Sprintf("Unexpected status for plant_id %d, %d", plantID, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[m.now().Format(missingLogTimeFormat)] = msg
	m.persist()
}

// Entries returns a copy of the logged entries
func (m *MissingLog) Entries() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.entries)
}

// Len returns the number of logged entries
func (m *MissingLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Path returns where the log is persisted
func (m *MissingLog) Path() string { return m.path }

// persist must be called with mu held
func (m *MissingLog) persist() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m.entries, "", "    ")
	if err != nil {
		log.Printf("Warning: failed to encode missing-data log: %v", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		log.Printf("Warning: failed to write missing-data log to %s: %v", m.path, err)
	}
}
