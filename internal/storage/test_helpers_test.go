package storage

import (
	"testing"

	"clipstream/internal/models"
)

func testAssetRef(publicID string) models.AssetRef {
	return models.AssetRef{
		URL:      "https://assets.example.com/" + publicID + ".bin",
		PublicID: publicID,
	}
}

func mustCreateVideo(t *testing.T, store *Storage, ownerID, title string) models.Video {
	t.Helper()
	video, err := store.CreateVideo(CreateVideoParams{
		OwnerID:     ownerID,
		Title:       title,
		Description: "description for " + title,
		VideoFile:   testAssetRef("videos/" + title),
		Thumbnail:   testAssetRef("thumbnails/" + title),
		Duration:    "00:01:30",
		Size:        "12.40",
	})
	if err != nil {
		t.Fatalf("CreateVideo %s: %v", title, err)
	}
	return video
}
