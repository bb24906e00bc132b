package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipstream/internal/models"
)

type dataset struct {
	Users         map[string]models.User          `json:"users"`
	Videos        map[string]models.Video         `json:"videos"`
	Tweets        map[string]models.Tweet         `json:"tweets"`
	Comments      map[string]models.Comment       `json:"comments"`
	Subscriptions map[string]map[string]time.Time `json:"subscriptions"`
}

// Storage is the JSON-file document store. The whole dataset lives in memory
// behind a RWMutex and is rewritten atomically (temp file + rename) on every
// mutation.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		Videos:        make(map[string]models.Video),
		Tweets:        make(map[string]models.Tweet),
		Comments:      make(map[string]models.Comment),
		Subscriptions: make(map[string]map[string]time.Time),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Videos == nil {
		s.data.Videos = make(map[string]models.Video)
	}
	if s.data.Tweets == nil {
		s.data.Tweets = make(map[string]models.Tweet)
	}
	if s.data.Comments == nil {
		s.data.Comments = make(map[string]models.Comment)
	}
	if s.data.Subscriptions == nil {
		s.data.Subscriptions = make(map[string]map[string]time.Time)
	}
}

// NewStorage opens (or creates) the JSON datastore at path.
func NewStorage(path string, opts ...Option) (*Storage, error) {
	store := &Storage{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyJSON(store)
		}
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()
	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// Ping reports whether the backing file is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	return nil
}

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

var usernameCaser = cases.Lower(language.Und)

// NormalizeUsername lower-cases a username with Unicode-aware folding; stored
// usernames and lookups both pass through it.
func NormalizeUsername(username string) string {
	return usernameCaser.String(strings.TrimSpace(username))
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// CreateUser registers a new user. Username and email must be unique across
// the dataset; violations return ErrConflict.
func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := NormalizeUsername(params.Username)
	if username == "" {
		return models.User{}, invalidInput("username is required")
	}
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, invalidInput("email is required")
	}
	fullName := strings.TrimSpace(params.FullName)
	if fullName == "" {
		return models.User{}, invalidInput("fullName is required")
	}
	if params.Password == "" {
		return models.User{}, invalidInput("password is required")
	}
	for _, user := range s.data.Users {
		if user.Username == username || user.Email == email {
			return models.User{}, fmt.Errorf("user with that username or email %w", ErrConflict)
		}
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	user := models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hashed,
		Avatar:       cloneAssetRef(params.Avatar),
		CoverImage:   cloneAssetRef(params.CoverImage),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}
	return user, nil
}

// GetUser returns the user with the given id.
func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByUsername looks a user up by normalized username.
func (s *Storage) FindUserByUsername(username string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalized := NormalizeUsername(username)
	for _, user := range s.data.Users {
		if user.Username == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

// FindUserByUsernameOrEmail matches either unique field; registration uses it
// for its duplicate check and login for identifier resolution.
func (s *Storage) FindUserByUsernameOrEmail(username, email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	normalizedUsername := NormalizeUsername(username)
	normalizedEmail := normalizeEmail(email)
	for _, user := range s.data.Users {
		if normalizedUsername != "" && user.Username == normalizedUsername {
			return user, true
		}
		if normalizedEmail != "" && user.Email == normalizedEmail {
			return user, true
		}
	}
	return models.User{}, false
}

// UpdateUser applies the non-nil fields of update and persists the result.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		if trimmed == "" {
			return models.User{}, invalidInput("fullName cannot be blank")
		}
		user.FullName = trimmed
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return models.User{}, invalidInput("email cannot be blank")
		}
		for otherID, other := range s.data.Users {
			if otherID != id && other.Email == email {
				return models.User{}, fmt.Errorf("email %w", ErrConflict)
			}
		}
		user.Email = email
	}
	if update.Avatar != nil {
		user.Avatar = cloneAssetRef(update.Avatar)
	}
	if update.CoverImage != nil {
		user.CoverImage = cloneAssetRef(update.CoverImage)
	}
	user.UpdatedAt = s.now()

	previous := s.data.Users[id]
	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		s.data.Users[id] = previous
		return models.User{}, err
	}
	return user, nil
}

// AppendWatchHistory records that the user watched the video, moving it to
// the front of the history when already present.
func (s *Storage) AppendWatchHistory(userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	// Already the most recent entry; nothing to reorder, skip the persist.
	if user.HasWatched(videoID) && user.WatchHistory[0] == videoID {
		return nil
	}

	history := make([]string, 0, len(user.WatchHistory)+1)
	history = append(history, videoID)
	for _, id := range user.WatchHistory {
		if id != videoID {
			history = append(history, id)
		}
	}
	previous := s.data.Users[userID]
	user.WatchHistory = history
	s.data.Users[userID] = user
	if err := s.persist(); err != nil {
		s.data.Users[userID] = previous
		return err
	}
	return nil
}

// WatchHistory resolves the user's watched videos, most recent first. Videos
// deleted since being watched are skipped.
func (s *Storage) WatchHistory(userID string) ([]models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	videos := make([]models.Video, 0, len(user.WatchHistory))
	for _, id := range user.WatchHistory {
		if video, ok := s.data.Videos[id]; ok {
			videos = append(videos, video)
		}
	}
	return videos, nil
}

func cloneAssetRef(ref *models.AssetRef) *models.AssetRef {
	if ref == nil {
		return nil
	}
	cloned := *ref
	return &cloned
}

// cloneDataset deep-copies the dataset so multi-entity mutations can be
// staged and only swapped in after a successful persist.
func cloneDataset(src dataset) dataset {
	clone := newDataset()

	for id, user := range src.Users {
		cloned := user
		cloned.Avatar = cloneAssetRef(user.Avatar)
		cloned.CoverImage = cloneAssetRef(user.CoverImage)
		if user.WatchHistory != nil {
			cloned.WatchHistory = append([]string(nil), user.WatchHistory...)
		}
		clone.Users[id] = cloned
	}
	for id, video := range src.Videos {
		clone.Videos[id] = video
	}
	for id, tweet := range src.Tweets {
		clone.Tweets[id] = tweet
	}
	for id, comment := range src.Comments {
		clone.Comments[id] = comment
	}
	for channelID, subscribers := range src.Subscriptions {
		cloned := make(map[string]time.Time, len(subscribers))
		for subscriberID, since := range subscribers {
			cloned[subscriberID] = since
		}
		clone.Subscriptions[channelID] = cloned
	}
	return clone
}
