package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	store, err := NewStorage(path, opts...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func mustCreateUser(t *testing.T, store *Storage, username, email string) userFixture {
	t.Helper()
	user, err := store.CreateUser(CreateUserParams{
		Username: username,
		Email:    email,
		FullName: "Test User",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", username, err)
	}
	return userFixture{ID: user.ID, Username: user.Username, Email: user.Email}
}

type userFixture struct {
	ID       string
	Username string
	Email    string
}

func TestCreateUserNormalizesAndPersists(t *testing.T) {
	store := newTestStore(t)

	user, err := store.CreateUser(CreateUserParams{
		Username: "  AliceVideos ",
		Email:    " Alice@Example.COM ",
		FullName: "Alice Example",
		Password: "hunter42!",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected user ID to be set")
	}
	if user.Username != "alicevideos" {
		t.Fatalf("expected lower-cased username, got %q", user.Username)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "hunter42!" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}

	reloaded, err := NewStorage(store.filePath)
	if err != nil {
		t.Fatalf("reload storage: %v", err)
	}
	persisted, ok := reloaded.FindUserByUsername("AliceVideos")
	if !ok {
		t.Fatal("expected persisted user to be found after reload")
	}
	if persisted.ID != user.ID {
		t.Fatalf("expected persisted user %s, got %s", user.ID, persisted.ID)
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	store := newTestStore(t)
	mustCreateUser(t, store, "alice", "alice@example.com")

	cases := []struct {
		name     string
		username string
		email    string
	}{
		{"same username", "alice", "other@example.com"},
		{"same username different case", "ALICE", "other@example.com"},
		{"same email", "someoneelse", "alice@example.com"},
		{"same email different case", "someoneelse", "ALICE@EXAMPLE.COM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.CreateUser(CreateUserParams{
				Username: tc.username,
				Email:    tc.email,
				FullName: "Dup",
				Password: "password123",
			})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
		})
	}
}

func TestCreateUserValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		name   string
		params CreateUserParams
	}{
		{"missing username", CreateUserParams{Email: "a@example.com", FullName: "A", Password: "password123"}},
		{"missing email", CreateUserParams{Username: "a", FullName: "A", Password: "password123"}},
		{"missing full name", CreateUserParams{Username: "a", Email: "a@example.com", Password: "password123"}},
		{"missing password", CreateUserParams{Username: "a", Email: "a@example.com", FullName: "A"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.CreateUser(tc.params); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateUserPersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)

	store.persistOverride = func(dataset) error {
		return errors.New("persist failed")
	}
	_, err := store.CreateUser(CreateUserParams{
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice",
		Password: "password123",
	})
	if err == nil {
		t.Fatal("expected CreateUser error when persist fails")
	}
	store.persistOverride = nil

	if _, ok := store.FindUserByUsername("alice"); ok {
		t.Fatal("expected failed registration to leave no user behind")
	}
}

func TestUpdateUser(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")
	mustCreateUser(t, store, "bob", "bob@example.com")

	newName := "Alice Cooper"
	newEmail := "Alice.Cooper@Example.com"
	updated, err := store.UpdateUser(alice.ID, UserUpdate{FullName: &newName, Email: &newEmail})
	if err != nil {
		t.Fatalf("UpdateUser returned error: %v", err)
	}
	if updated.FullName != newName {
		t.Fatalf("expected full name %q, got %q", newName, updated.FullName)
	}
	if updated.Email != "alice.cooper@example.com" {
		t.Fatalf("expected normalized email, got %q", updated.Email)
	}

	takenEmail := "bob@example.com"
	if _, err := store.UpdateUser(alice.ID, UserUpdate{Email: &takenEmail}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}

	if _, err := store.UpdateUser("missing", UserUpdate{FullName: &newName}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserReplacesAssetRefs(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")

	first := testAssetRef("avatars/first")
	if _, err := store.UpdateUser(alice.ID, UserUpdate{Avatar: &first}); err != nil {
		t.Fatalf("UpdateUser avatar: %v", err)
	}
	second := testAssetRef("avatars/second")
	updated, err := store.UpdateUser(alice.ID, UserUpdate{Avatar: &second})
	if err != nil {
		t.Fatalf("UpdateUser second avatar: %v", err)
	}
	if updated.Avatar == nil || updated.Avatar.PublicID != "avatars/second" {
		t.Fatalf("expected replacement avatar, got %+v", updated.Avatar)
	}
}

func TestWatchHistoryOrderingAndDeletedVideos(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")

	first := mustCreateVideo(t, store, alice.ID, "First")
	second := mustCreateVideo(t, store, alice.ID, "Second")

	if err := store.AppendWatchHistory(alice.ID, first.ID); err != nil {
		t.Fatalf("AppendWatchHistory first: %v", err)
	}
	if err := store.AppendWatchHistory(alice.ID, second.ID); err != nil {
		t.Fatalf("AppendWatchHistory second: %v", err)
	}
	// Rewatching moves the entry back to the front without duplicating it.
	if err := store.AppendWatchHistory(alice.ID, first.ID); err != nil {
		t.Fatalf("AppendWatchHistory rewatch: %v", err)
	}

	history, err := store.WatchHistory(alice.ID)
	if err != nil {
		t.Fatalf("WatchHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("expected most recent first, got %s then %s", history[0].ID, history[1].ID)
	}

	if err := store.DeleteVideo(second.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	history, err = store.WatchHistory(alice.ID)
	if err != nil {
		t.Fatalf("WatchHistory after delete: %v", err)
	}
	if len(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("expected deleted video to be skipped, got %+v", history)
	}

	if err := store.AppendWatchHistory(alice.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func TestAppendWatchHistoryRepeatWatchIsStable(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")
	video := mustCreateVideo(t, store, alice.ID, "Only")

	for i := 0; i < 3; i++ {
		if err := store.AppendWatchHistory(alice.ID, video.ID); err != nil {
			t.Fatalf("AppendWatchHistory repeat %d: %v", i, err)
		}
	}

	history, err := store.WatchHistory(alice.ID)
	if err != nil {
		t.Fatalf("WatchHistory: %v", err)
	}
	if len(history) != 1 || history[0].ID != video.ID {
		t.Fatalf("expected a single history entry, got %+v", history)
	}

	user, ok := store.GetUser(alice.ID)
	if !ok {
		t.Fatal("user missing")
	}
	if !user.HasWatched(video.ID) {
		t.Fatal("expected HasWatched true for a watched video")
	}
	if user.HasWatched("somethingelse") {
		t.Fatal("expected HasWatched false for an unwatched video")
	}
}

func TestNormalizeUsername(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"  MixedCase  ", "mixedcase"},
		{"ÜBER", "über"},
		{"already", "already"},
	}
	for _, tc := range cases {
		if got := NormalizeUsername(tc.in); got != tc.want {
			t.Fatalf("NormalizeUsername(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
