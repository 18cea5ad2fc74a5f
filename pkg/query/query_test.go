package query

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *cache.Store) {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(store), store
}

func seedItem(t *testing.T, store *cache.Store, id, creationTime, mimeType, filename, description, cameraModel string) {
	t.Helper()
	item := photos.MediaItem{
		ID:          id,
		Description: description,
		ProductURL:  "https://example.com/" + id,
		BaseURL:     "https://example.com/base/" + id,
		MimeType:    mimeType,
		MediaMetadata: photos.MediaMetadata{
			CreationTime: creationTime,
			Width:        "100",
			Height:       "100",
		},
		Filename: filename,
	}
	if cameraModel != "" {
		item.MediaMetadata.Photo = &photos.Photo{CameraModel: cameraModel}
	}
	require.NoError(t, store.InsertMediaItem(&item))
}

func ids(items []photos.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestSearchWithoutPredicatesReturnsEverything(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "a", "2023-01-01T00:00:00Z", "image/jpeg", "a.jpg", "", "")
	seedItem(t, store, "b", "2023-02-01T00:00:00Z", "image/png", "b.png", "", "")

	all, err := store.GetAllMediaItems()
	require.NoError(t, err)

	results, err := engine.Search(Params{})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(all), ids(results))
}

func TestSearchComposesPredicatesConjunctively(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "eos-jan", "2023-01-02T00:00:00Z", "image/jpeg", "trip.jpg", "", "EOS")
	seedItem(t, store, "eos-feb", "2023-02-02T00:00:00Z", "image/jpeg", "trip2.jpg", "", "EOS")
	seedItem(t, store, "d5-jan", "2023-01-03T00:00:00Z", "image/jpeg", "trip3.jpg", "", "D5")

	model := "EOS"
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)

	results, err := engine.Search(Params{CameraModel: &model, Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, []string{"eos-jan"}, ids(results))

	// The combined result equals the intersection of single-predicate
	// queries.
	byModel, err := store.MediaItemsByCameraModel(model)
	require.NoError(t, err)
	byDate, err := store.MediaItemsByDateRange(start, end)
	require.NoError(t, err)

	inModel := map[string]bool{}
	for _, item := range byModel {
		inModel[item.ID] = true
	}
	var expected []string
	for _, item := range byDate {
		if inModel[item.ID] {
			expected = append(expected, item.ID)
		}
	}
	assert.ElementsMatch(t, expected, ids(results))
}

func TestSearchTextMatchesFilenameOrDescription(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "A", "2023-01-01T00:00:00Z", "image/png", "foo.png", "bar", "")
	seedItem(t, store, "B", "2023-01-02T00:00:00Z", "image/jpeg", "bar.jpg", "foo", "")

	text := "foo"
	results, err := engine.Search(Params{Text: &text})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, ids(results))

	// The dedicated pathway agrees and stays deduplicated.
	byText, err := engine.ByText("foo")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(results), ids(byText))
}

func TestSearchOrdering(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "c", "2023-01-01T00:00:00Z", "image/jpeg", "c.jpg", "", "")
	seedItem(t, store, "a", "2023-03-01T00:00:00Z", "image/jpeg", "a.jpg", "", "")
	seedItem(t, store, "b", "2023-03-01T00:00:00Z", "image/jpeg", "b.jpg", "", "")

	results, err := engine.Search(Params{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
}

func TestSearchAsyncAgreesWithSearch(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "a", "2023-01-01T00:00:00Z", "image/jpeg", "a.jpg", "", "")
	seedItem(t, store, "b", "2023-02-01T00:00:00Z", "image/png", "b.png", "", "")

	mime := "image/png"
	params := Params{MimeType: &mime}

	syncResults, err := engine.Search(params)
	require.NoError(t, err)

	result := <-engine.SearchAsync(params)
	require.NoError(t, result.Err)
	assert.Equal(t, ids(syncResults), ids(result.Items))
}

func TestSearchFavorite(t *testing.T) {
	engine, store := newTestEngine(t)

	seedItem(t, store, "fav", "2023-01-01T00:00:00Z", "image/jpeg", "f.jpg", "", "")
	seedItem(t, store, "plain", "2023-01-02T00:00:00Z", "image/jpeg", "p.jpg", "", "")
	require.NoError(t, store.SetFavorite("fav", true))

	favorite := true
	results, err := engine.Search(Params{Favorite: &favorite})
	require.NoError(t, err)
	assert.Equal(t, []string{"fav"}, ids(results))

	favorite = false
	results, err = engine.Search(Params{Favorite: &favorite})
	require.NoError(t, err)
	assert.Equal(t, []string{"plain"}, ids(results))
}
