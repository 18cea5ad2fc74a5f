package photos

import "os"

// mockAPIClientEnv short-circuits every operation to canned fixtures so the
// engine can run without network access. The fixture shapes are part of the
// testable contract and match the sync and album tests.
const mockAPIClientEnv = "MOCK_API_CLIENT"

func mockEnabled() bool {
	return os.Getenv(mockAPIClientEnv) != ""
}

func mockMediaItem(id string) MediaItem {
	return MediaItem{
		ID:         id,
		ProductURL: "http://example.com",
		BaseURL:    "http://example.com/base",
		MimeType:   "image/jpeg",
		MediaMetadata: MediaMetadata{
			CreationTime: "2023-01-01T00:00:00Z",
			Width:        "1",
			Height:       "1",
		},
		Filename: id + ".jpg",
	}
}

func mockListMediaItems() ([]MediaItem, string, error) {
	return []MediaItem{mockMediaItem("1"), mockMediaItem("2")}, "", nil
}

func mockSearchMediaItems() ([]MediaItem, string, error) {
	return []MediaItem{mockMediaItem("3")}, "", nil
}

func mockListAlbums() ([]Album, string, error) {
	return []Album{{ID: "1", Title: "Test Album"}}, "", nil
}

func mockCreateAlbum(title string) *Album {
	return &Album{ID: "1", Title: title}
}
