package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"clipstream/internal/models"
)

// Snapshot is a point-in-time export of the JSON datastore, used by the
// migration tool to move data into Postgres.
type Snapshot struct {
	Users         map[string]models.User          `json:"users"`
	Videos        map[string]models.Video         `json:"videos"`
	Tweets        map[string]models.Tweet         `json:"tweets"`
	Comments      map[string]models.Comment       `json:"comments"`
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
}

// SnapshotCounts summarises a snapshot for post-migration verification.
type SnapshotCounts struct {
	Users         int
	Videos        int
	Tweets        int
	Comments      int
	Subscriptions int
	WatchHistory  int
}

// Counts tallies the entities in the snapshot.
func (s *Snapshot) Counts() SnapshotCounts {
	counts := SnapshotCounts{
		Users:    len(s.Users),
		Videos:   len(s.Videos),
		Tweets:   len(s.Tweets),
		Comments: len(s.Comments),
	}
	for _, subscribers := range s.Subscriptions {
		counts.Subscriptions += len(subscribers)
	}
	for _, user := range s.Users {
		counts.WatchHistory += len(user.WatchHistory)
	}
	return counts
}

// LoadSnapshotFromJSON reads a JSON datastore file into a snapshot.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	snapshot := &Snapshot{}
	if err := json.Unmarshal(raw, snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot file: %w", err)
	}
	if snapshot.Users == nil {
		snapshot.Users = make(map[string]models.User)
	}
	if snapshot.Videos == nil {
		snapshot.Videos = make(map[string]models.Video)
	}
	if snapshot.Tweets == nil {
		snapshot.Tweets = make(map[string]models.Tweet)
	}
	if snapshot.Comments == nil {
		snapshot.Comments = make(map[string]models.Comment)
	}
	if snapshot.Subscriptions == nil {
		snapshot.Subscriptions = make(map[string]map[string]time.Time)
	}
	return snapshot, nil
}

// Snapshot exports the current dataset.
func (s *Storage) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := cloneDataset(s.data)
	return &Snapshot{
		Users:         clone.Users,
		Videos:        clone.Videos,
		Tweets:        clone.Tweets,
		Comments:      clone.Comments,
		Subscriptions: clone.Subscriptions,
	}
}
