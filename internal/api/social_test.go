package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateTweet(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.Tweets(rec, asUser(jsonRequest(t, http.MethodPost, "/api/v1/tweets", map[string]string{
		"content": "hello from alice",
	}), user))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := envelopeData(t, rec)
	if data["content"] != "hello from alice" {
		t.Fatalf("unexpected content %v", data["content"])
	}
	if data["ownerId"] != user.ID {
		t.Fatalf("unexpected ownerId %v", data["ownerId"])
	}
}

func TestCreateTweetRejectsOversizedContent(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.Tweets(rec, asUser(jsonRequest(t, http.MethodPost, "/api/v1/tweets", map[string]string{
		"content": strings.Repeat("x", 1000),
	}), user))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTweetsPagination(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")
	for i := 0; i < 3; i++ {
		if _, err := env.store.CreateTweet(user.ID, fmt.Sprintf("tweet %d", i)); err != nil {
			t.Fatalf("CreateTweet: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	env.handler.Tweets(rec, asUser(httptest.NewRequest(http.MethodGet,
		"/api/v1/tweets?userid="+user.ID+"&page=1&limit=2", nil), user))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := envelopeData(t, rec)
	tweets, ok := data["tweets"].([]any)
	if !ok || len(tweets) != 2 {
		t.Fatalf("expected 2 tweets on the page, got %v", data["tweets"])
	}
	if data["total"] != float64(3) {
		t.Fatalf("expected total 3, got %v", data["total"])
	}
	if data["hasMoreTweets"] != true {
		t.Fatal("expected hasMoreTweets true")
	}
}

func TestListTweetsRequiresUserID(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.Tweets(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/tweets", nil), user))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTweetAuthorOnlyModification(t *testing.T) {
	env := newTestEnv(t)
	author := env.createUser(t, "alice")
	other := env.createUser(t, "bob")
	tweet, err := env.store.CreateTweet(author.ID, "original")
	if err != nil {
		t.Fatalf("CreateTweet: %v", err)
	}
	target := "/api/v1/tweets/" + tweet.ID

	otherRec := httptest.NewRecorder()
	env.handler.TweetByID(otherRec, asUser(jsonRequest(t, http.MethodPatch, target, map[string]string{
		"content": "hijacked",
	}), other))
	if otherRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-author, got %d", otherRec.Code)
	}

	authorRec := httptest.NewRecorder()
	env.handler.TweetByID(authorRec, asUser(jsonRequest(t, http.MethodPatch, target, map[string]string{
		"content": "edited",
	}), author))
	if authorRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", authorRec.Code, authorRec.Body.String())
	}
	if data := envelopeData(t, authorRec); data["content"] != "edited" {
		t.Fatalf("edit not applied: %v", data)
	}

	deleteRec := httptest.NewRecorder()
	env.handler.TweetByID(deleteRec, asUser(httptest.NewRequest(http.MethodDelete, target, nil), author))
	if deleteRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleteRec.Code)
	}
	if _, ok := env.store.GetTweet(tweet.ID); ok {
		t.Fatal("tweet still present after delete")
	}
}

func TestTweetByIDUnknownTweet(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.TweetByID(rec, asUser(httptest.NewRequest(http.MethodDelete,
		"/api/v1/tweets/0123456789abcdef0123456789abcdef", nil), user))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCommentsOnVideo(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "alice")
	commenter := env.createUser(t, "bob")
	video := env.publishVideo(t, owner, "clip")
	target := "/api/v1/comments/" + video.ID

	createRec := httptest.NewRecorder()
	env.handler.CommentsByVideo(createRec, asUser(jsonRequest(t, http.MethodPost, target, map[string]string{
		"content": "great clip",
	}), commenter))
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createRec.Code, createRec.Body.String())
	}

	listRec := httptest.NewRecorder()
	env.handler.CommentsByVideo(listRec, asUser(httptest.NewRequest(http.MethodGet, target, nil), owner))
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}
	data := envelopeData(t, listRec)
	comments, ok := data["comments"].([]any)
	if !ok || len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %v", data["comments"])
	}
	if data["hasMore"] != false {
		t.Fatal("expected hasMore false")
	}
}

func TestCommentOnUnknownVideo(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.CommentsByVideo(rec, asUser(jsonRequest(t, http.MethodPost,
		"/api/v1/comments/0123456789abcdef0123456789abcdef", map[string]string{
			"content": "hello",
		}), user))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCommentAuthorOnlyModification(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "alice")
	commenter := env.createUser(t, "bob")
	video := env.publishVideo(t, owner, "clip")
	comment, err := env.store.CreateComment(video.ID, commenter.ID, "original")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	target := "/api/v1/comments/c/" + comment.ID

	// The video owner still may not edit someone else's comment.
	ownerRec := httptest.NewRecorder()
	env.handler.CommentByID(ownerRec, asUser(jsonRequest(t, http.MethodPatch, target, map[string]string{
		"content": "moderated",
	}), owner))
	if ownerRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", ownerRec.Code)
	}

	editRec := httptest.NewRecorder()
	env.handler.CommentByID(editRec, asUser(jsonRequest(t, http.MethodPatch, target, map[string]string{
		"content": "edited",
	}), commenter))
	if editRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", editRec.Code, editRec.Body.String())
	}

	deleteRec := httptest.NewRecorder()
	env.handler.CommentByID(deleteRec, asUser(httptest.NewRequest(http.MethodDelete, target, nil), commenter))
	if deleteRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", deleteRec.Code)
	}
	if _, ok := env.store.GetComment(comment.ID); ok {
		t.Fatal("comment still present after delete")
	}
}

func TestToggleSubscription(t *testing.T) {
	env := newTestEnv(t)
	channel := env.createUser(t, "alice")
	subscriber := env.createUser(t, "bob")
	target := "/api/v1/subscriptions/alice"

	rec := httptest.NewRecorder()
	env.handler.ToggleSubscription(rec, asUser(httptest.NewRequest(http.MethodPost, target, nil), subscriber))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := envelopeData(t, rec)
	if data["subscribed"] != true || data["channelId"] != channel.ID {
		t.Fatalf("unexpected toggle result %v", data)
	}
	if !env.store.IsSubscribed(channel.ID, subscriber.ID) {
		t.Fatal("subscription not recorded")
	}

	offRec := httptest.NewRecorder()
	env.handler.ToggleSubscription(offRec, asUser(httptest.NewRequest(http.MethodPost, target, nil), subscriber))
	if data := envelopeData(t, offRec); data["subscribed"] != false {
		t.Fatalf("expected unsubscribe on second toggle, got %v", data)
	}
	if env.store.IsSubscribed(channel.ID, subscriber.ID) {
		t.Fatal("subscription still recorded after second toggle")
	}
}

func TestToggleSubscriptionSelf(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.ToggleSubscription(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/alice", nil), user))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when subscribing to yourself, got %d", rec.Code)
	}
}

func TestToggleSubscriptionUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice")

	rec := httptest.NewRecorder()
	env.handler.ToggleSubscription(rec, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/ghost", nil), user))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
