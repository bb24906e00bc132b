package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTweetLifecycle(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")

	tweet, err := store.CreateTweet(alice.ID, "  hello world  ")
	if err != nil {
		t.Fatalf("CreateTweet: %v", err)
	}
	if tweet.Content != "hello world" {
		t.Fatalf("expected trimmed content, got %q", tweet.Content)
	}

	if _, err := store.CreateTweet(alice.ID, "   "); err == nil {
		t.Fatal("expected error for blank tweet")
	}
	if _, err := store.CreateTweet(alice.ID, strings.Repeat("x", MaxTweetLength+1)); err == nil {
		t.Fatal("expected error for oversized tweet")
	}
	if _, err := store.CreateTweet("missing", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}

	updated, err := store.UpdateTweet(tweet.ID, "edited")
	if err != nil {
		t.Fatalf("UpdateTweet: %v", err)
	}
	if updated.Content != "edited" {
		t.Fatalf("expected edited content, got %q", updated.Content)
	}

	if err := store.DeleteTweet(tweet.ID); err != nil {
		t.Fatalf("DeleteTweet: %v", err)
	}
	if _, ok := store.GetTweet(tweet.ID); ok {
		t.Fatal("expected tweet to be removed")
	}
	if err := store.DeleteTweet(tweet.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListTweetsPagination(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store := newTestStore(t, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	alice := mustCreateUser(t, store, "alice", "alice@example.com")

	for i := 0; i < 5; i++ {
		if _, err := store.CreateTweet(alice.ID, "tweet "+strings.Repeat("i", i+1)); err != nil {
			t.Fatalf("CreateTweet %d: %v", i, err)
		}
	}

	tweets, total, err := store.ListTweets(alice.ID, 1, 2)
	if err != nil {
		t.Fatalf("ListTweets: %v", err)
	}
	if total != 5 || len(tweets) != 2 {
		t.Fatalf("expected total 5 with 2 per page, got total=%d len=%d", total, len(tweets))
	}
	if !tweets[0].CreatedAt.After(tweets[1].CreatedAt) {
		t.Fatal("expected newest tweet first")
	}

	tweets, total, err = store.ListTweets(alice.ID, 3, 2)
	if err != nil {
		t.Fatalf("ListTweets last page: %v", err)
	}
	if total != 5 || len(tweets) != 1 {
		t.Fatalf("expected last page with 1 item, got total=%d len=%d", total, len(tweets))
	}

	if _, _, err := store.ListTweets("missing", 1, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommentLifecycle(t *testing.T) {
	store := newTestStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")
	bob := mustCreateUser(t, store, "bob", "bob@example.com")
	video := mustCreateVideo(t, store, alice.ID, "Commented")

	comment, err := store.CreateComment(video.ID, bob.ID, "nice one")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if comment.VideoID != video.ID || comment.OwnerID != bob.ID {
		t.Fatalf("unexpected comment ownership: %+v", comment)
	}

	if _, err := store.CreateComment("missing", bob.ID, "hello"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
	if _, err := store.CreateComment(video.ID, bob.ID, strings.Repeat("y", MaxCommentLength+1)); err == nil {
		t.Fatal("expected error for oversized comment")
	}

	updated, err := store.UpdateComment(comment.ID, "even better")
	if err != nil {
		t.Fatalf("UpdateComment: %v", err)
	}
	if updated.Content != "even better" {
		t.Fatalf("expected updated content, got %q", updated.Content)
	}

	comments, total, err := store.ListComments(video.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if total != 1 || len(comments) != 1 {
		t.Fatalf("expected single comment, got total=%d len=%d", total, len(comments))
	}

	if err := store.DeleteComment(comment.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	if _, ok := store.GetComment(comment.ID); ok {
		t.Fatal("expected comment to be removed")
	}
}

func TestToggleSubscription(t *testing.T) {
	store := newTestStore(t)
	channel := mustCreateUser(t, store, "channel", "channel@example.com")
	viewer := mustCreateUser(t, store, "viewer", "viewer@example.com")

	subscribed, err := store.ToggleSubscription(channel.ID, viewer.ID)
	if err != nil {
		t.Fatalf("ToggleSubscription: %v", err)
	}
	if !subscribed {
		t.Fatal("expected first toggle to subscribe")
	}
	if !store.IsSubscribed(channel.ID, viewer.ID) {
		t.Fatal("expected IsSubscribed true after subscribing")
	}
	if store.CountSubscribers(channel.ID) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", store.CountSubscribers(channel.ID))
	}
	if store.CountSubscribedTo(viewer.ID) != 1 {
		t.Fatalf("expected viewer to follow 1 channel, got %d", store.CountSubscribedTo(viewer.ID))
	}

	subscribed, err = store.ToggleSubscription(channel.ID, viewer.ID)
	if err != nil {
		t.Fatalf("ToggleSubscription second: %v", err)
	}
	if subscribed {
		t.Fatal("expected second toggle to unsubscribe")
	}
	if store.IsSubscribed(channel.ID, viewer.ID) {
		t.Fatal("expected IsSubscribed false after unsubscribing")
	}

	if _, err := store.ToggleSubscription(channel.ID, channel.ID); err == nil {
		t.Fatal("expected error when subscribing to own channel")
	}
	if _, err := store.ToggleSubscription("missing", viewer.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleSubscriptionPersistFailureLeavesDataUntouched(t *testing.T) {
	store := newTestStore(t)
	channel := mustCreateUser(t, store, "channel", "channel@example.com")
	viewer := mustCreateUser(t, store, "viewer", "viewer@example.com")

	store.persistOverride = func(dataset) error {
		return errors.New("persist failed")
	}
	if _, err := store.ToggleSubscription(channel.ID, viewer.ID); err == nil {
		t.Fatal("expected ToggleSubscription error when persist fails")
	}
	store.persistOverride = nil

	if store.IsSubscribed(channel.ID, viewer.ID) {
		t.Fatal("expected failed toggle to leave no subscription behind")
	}
}
