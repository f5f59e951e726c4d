// Package store persists the agent's session transcript to a local JSONL
// log, and optionally mirrors operation and tool-metric history into
// Postgres for longer-term querying.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType discriminates SessionEntry.
type EntryType string

const (
	EntryUser      EntryType = "user"
	EntryAssistant EntryType = "assistant"
	EntryToolCall  EntryType = "tool_call"
	EntryToolResult EntryType = "tool_result"
	EntrySystem    EntryType = "system"
)

// SessionEntry is one line in the session.log JSONL transcript.
type SessionEntry struct {
	Type          EntryType `json:"type"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	ToolCallID    string    `json:"toolCallId,omitempty"`
	ToolCallsCount int      `json:"toolCallsCount,omitempty"`
}

// SessionLog is an append-only JSONL transcript of one chat session,
// written at <home>/.grok/session.log by default. Each Append call writes
// atomically at the line level: marshal, then a single Write call under a
// mutex, so two goroutines never interleave partial lines.
type SessionLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenSessionLog opens (creating parent dirs and the file if needed) the
// session log at path for appending.
func OpenSessionLog(path string) (*SessionLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create session dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open session log: %w", err)
	}
	return &SessionLog{path: path, file: f}, nil
}

// Append writes one entry as a single JSON line. Write failures are
// swallowed — the transcript is a convenience log, not the system of
// record for in-memory conversation state owned by the Orchestrator.
func (s *SessionLog) Append(entry SessionEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.file.Write(data)
}

// ReadAll loads every entry currently in the log, e.g. to rehydrate a
// resumed session's transcript for display.
func ReadAll(path string) ([]SessionEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []SessionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		var e SessionEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Close closes the underlying file.
func (s *SessionLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
