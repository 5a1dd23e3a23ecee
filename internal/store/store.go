// Package store owns all durable conversation state: per-session JSONL
// logs under the sessions directory, title metadata records, and the
// scheduled-task list. It assumes a single writer; the dispatcher is the
// only component that mutates the active session.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrSessionNotFound = fmt.Errorf("session not found")

type SessionInfo struct {
	Index     int
	Filename  string
	Timestamp string
	Title     string
}

type Store struct {
	sessionsDir string
	memoryDir   string

	mu          sync.Mutex
	sessionFile string
	lastStamp   time.Time

	nowFn func() time.Time
}

type Option func(*Store)

func WithClock(nowFn func() time.Time) Option {
	return func(s *Store) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// New opens the store rooted at the given directories, resuming the most
// recent session or starting a fresh one when none exists.
func New(sessionsDir, memoryDir string, opts ...Option) (*Store, error) {
	s := &Store{
		sessionsDir: sessionsDir,
		memoryDir:   memoryDir,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for _, dir := range []string{sessionsDir, memoryDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	latest, err := s.latestSessionFile()
	if err != nil {
		return nil, err
	}
	if latest != "" {
		s.sessionFile = latest
		return s, nil
	}
	if err := s.StartNewSession(""); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) now() time.Time {
	return s.nowFn()
}

// SessionFile returns the path of the current session log.
func (s *Store) SessionFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionFile
}

func (s *Store) latestSessionFile() (string, error) {
	files, err := s.sessionFilenames()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return filepath.Join(s.sessionsDir, files[len(files)-1]), nil
}

func (s *Store) sessionFilenames() ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// StartNewSession creates and switches to a fresh, empty session file.
// Timestamps are forced strictly increasing so rapid successive sessions
// still sort in creation order.
func (s *Store) StartNewSession(title string) error {
	s.mu.Lock()
	stamp := s.now()
	if !stamp.After(s.lastStamp) {
		stamp = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = stamp
	name := stamp.Format("2006-01-02_15-04-05") + fmt.Sprintf("-%06d", stamp.Nanosecond()/1000)
	path := filepath.Join(s.sessionsDir, name+".jsonl")
	s.sessionFile = path
	s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	if title != "" {
		return s.SetTitle(title)
	}
	return nil
}

// Append writes one message record to the current session log. The
// message's timestamp is stamped here if unset.
func (s *Store) Append(msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	line, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.appendLine(line)
}

func (s *Store) appendLine(line []byte) error {
	f, err := os.OpenFile(s.SessionFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Replace atomically rewrites the whole session log with the given
// messages. Used by compaction; every record gets a fresh timestamp.
func (s *Store) Replace(messages []Message) error {
	path := s.SessionFile()
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	for _, msg := range messages {
		msg.Timestamp = s.now()
		line, err := encodeMessage(msg)
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("encode message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("write temp log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flush temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session log: %w", err)
	}
	return nil
}

// LoadHistory returns the ordered message sequence of the current
// session, skipping metadata records.
func (s *Store) LoadHistory() ([]Message, error) {
	return s.loadHistoryFile(s.SessionFile())
}

func (s *Store) loadHistoryFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var history []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		msg, ok, err := decodeMessage(line)
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		if !ok {
			continue
		}
		history = append(history, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return history, nil
}

type metadataRecord struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// SetTitle appends a title metadata record to the current session.
func (s *Store) SetTitle(title string) error {
	rec := metadataRecord{
		Type:      "metadata",
		Key:       "title",
		Value:     title,
		Timestamp: s.now().Format(time.RFC3339Nano),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return s.appendLine(line)
}

// HasTitle reports whether the current session carries a title record.
func (s *Store) HasTitle() bool {
	title, err := s.titleOf(s.SessionFile())
	return err == nil && title != ""
}

func (s *Store) titleOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var title string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec metadataRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.Type == "metadata" && rec.Key == "title" {
			title = rec.Value
		}
	}
	return title, scanner.Err()
}

// ListSessions enumerates every session in creation order. The index is
// the handle used by SwitchSession.
func (s *Store) ListSessions() ([]SessionInfo, error) {
	files, err := s.sessionFilenames()
	if err != nil {
		return nil, err
	}
	sessions := make([]SessionInfo, 0, len(files))
	for i, name := range files {
		title, _ := s.titleOf(filepath.Join(s.sessionsDir, name))
		if title == "" {
			title = "Untitled Session"
		}
		stamp := strings.ReplaceAll(strings.TrimSuffix(name, ".jsonl"), "_", " ")
		sessions = append(sessions, SessionInfo{
			Index:     i,
			Filename:  name,
			Timestamp: stamp,
			Title:     title,
		})
	}
	return sessions, nil
}

// SwitchSession changes the current session by list index.
func (s *Store) SwitchSession(index int) error {
	files, err := s.sessionFilenames()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(files) {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	s.sessionFile = filepath.Join(s.sessionsDir, files[index])
	s.mu.Unlock()
	return nil
}
