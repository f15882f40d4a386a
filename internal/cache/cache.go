// Package cache writes per-meeting fallback snapshots to the workspace so a
// live session survives a store outage. Snapshots are plain JSON files under
// .oneloop/cache/, one per meeting.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("no cached snapshot")

type Dir struct {
	Root string
	Now  func() time.Time
}

func New(root string) Dir {
	return Dir{Root: root, Now: time.Now}
}

// Envelope wraps a snapshot with the write timestamp so recovery can tell
// how stale the fallback copy is.
type Envelope struct {
	MeetingID string          `json:"meetingId"`
	SavedAt   string          `json:"savedAt" format:"date-time"`
	State     json.RawMessage `json:"state"`
}

func (d Dir) path(meetingID string) string {
	return filepath.Join(d.Root, meetingID+".json")
}

// WriteSnapshot persists the state for one meeting, replacing any previous
// snapshot. Writes go through a temp file and rename so a crash never leaves
// a truncated snapshot behind.
func (d Dir) WriteSnapshot(meetingID string, state any) error {
	if err := os.MkdirAll(d.Root, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	env := Envelope{
		MeetingID: meetingID,
		SavedAt:   now().UTC().Format(time.RFC3339),
		State:     raw,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	tmp := d.path(meetingID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, d.path(meetingID))
}

// ReadSnapshot loads the cached state for a meeting into out and returns the
// envelope timestamp.
func (d Dir) ReadSnapshot(meetingID string, out any) (savedAt string, err error) {
	data, err := os.ReadFile(d.path(meetingID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode snapshot: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(env.State, out); err != nil {
			return "", fmt.Errorf("decode snapshot state: %w", err)
		}
	}
	return env.SavedAt, nil
}

// List returns the meeting ids that have cached snapshots.
func (d Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Remove deletes the snapshot after a successful re-sync. Missing files are
// not an error.
func (d Dir) Remove(meetingID string) error {
	err := os.Remove(d.path(meetingID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
