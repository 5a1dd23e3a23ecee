package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const tasksFilename = "scheduled_tasks.json"

// TaskRecord is the persisted shape of one scheduled task. Instants are
// stored as RFC 3339 strings; NextRun may be empty when the trigger
// could not be computed.
type TaskRecord struct {
	ID           string `json:"id"`
	Prompt       string `json:"prompt"`
	SessionFile  string `json:"session_file"`
	ChannelName  string `json:"channel_name"`
	TriggerType  string `json:"trigger_type"`
	TriggerValue string `json:"trigger_value"`
	CreatedAt    string `json:"created_at"`
	NextRun      string `json:"next_run"`
}

// SaveScheduledTasks writes the full task list, replacing the previous
// contents.
func (s *Store) SaveScheduledTasks(tasks []TaskRecord) error {
	if tasks == nil {
		tasks = []TaskRecord{}
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	path := filepath.Join(s.memoryDir, tasksFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	return nil
}

// LoadScheduledTasks returns the persisted task list; a missing or
// corrupt file yields an empty list.
func (s *Store) LoadScheduledTasks() ([]TaskRecord, error) {
	path := filepath.Join(s.memoryDir, tasksFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	var tasks []TaskRecord
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, nil
	}
	return tasks, nil
}
