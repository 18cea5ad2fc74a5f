package cache

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testMediaItem(id string) photos.MediaItem {
	return photos.MediaItem{
		ID:         id,
		ProductURL: "https://photos.google.com/lr/photo/" + id,
		BaseURL:    "https://lh3.googleusercontent.com/test/" + id,
		MimeType:   "image/jpeg",
		MediaMetadata: photos.MediaMetadata{
			CreationTime: "2023-01-01T12:00:00Z",
			Width:        "1920",
			Height:       "1080",
		},
		Filename: "test_image_" + id + ".jpg",
	}
}

func ids(items []photos.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestOpenAppliesAllMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	var version int
	require.NoError(t, store.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)
}

func TestInsertAndGetMediaItem(t *testing.T) {
	store := openTestStore(t)

	item := testMediaItem("id1")
	item.Description = "holiday"
	require.NoError(t, store.InsertMediaItem(&item))

	got, err := store.GetMediaItem("id1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item, *got)

	missing, err := store.GetMediaItem("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertRoundTripsCameraMetadata(t *testing.T) {
	store := openTestStore(t)

	photo := testMediaItem("p1")
	photo.MediaMetadata.Photo = &photos.Photo{CameraMake: "Canon", CameraModel: "EOS"}
	require.NoError(t, store.InsertMediaItem(&photo))

	video := testMediaItem("v1")
	video.MimeType = "video/mp4"
	video.MediaMetadata.Video = &photos.Video{CameraMake: "GoPro", CameraModel: "Hero", Fps: 30, Status: "READY"}
	require.NoError(t, store.InsertMediaItem(&video))

	gotPhoto, err := store.GetMediaItem("p1")
	require.NoError(t, err)
	assert.Equal(t, photo, *gotPhoto)

	gotVideo, err := store.GetMediaItem("v1")
	require.NoError(t, err)
	assert.Equal(t, video, *gotVideo)
}

func TestUpsertReplacesAndKeepsLocalState(t *testing.T) {
	store := openTestStore(t)

	item := testMediaItem("id1")
	require.NoError(t, store.InsertMediaItem(&item))
	require.NoError(t, store.SetFavorite("id1", true))

	album := photos.Album{ID: "a1", Title: "Trip"}
	require.NoError(t, store.InsertAlbum(&album))
	require.NoError(t, store.AssociateMediaItem("a1", "id1"))

	// Re-sync delivers the same id with changed fields.
	updated := testMediaItem("id1")
	updated.Description = "updated"
	updated.Filename = "renamed.jpg"
	require.NoError(t, store.InsertMediaItem(&updated))

	got, err := store.GetMediaItem("id1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.Equal(t, "renamed.jpg", got.Filename)

	// The derived favorite flag and memberships survive the upsert.
	fav, err := store.IsFavorite("id1")
	require.NoError(t, err)
	assert.True(t, fav)

	members, err := store.AlbumMediaItems("a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"id1"}, ids(members))
}

func TestGetAllMediaItems(t *testing.T) {
	store := openTestStore(t)

	item1 := testMediaItem("id1")
	item2 := testMediaItem("id2")
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{item1, item2}))

	all, err := store.GetAllMediaItems()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id1", "id2"}, ids(all))
}

func TestDeleteMediaItemCascades(t *testing.T) {
	store := openTestStore(t)

	item := testMediaItem("i1")
	require.NoError(t, store.InsertMediaItem(&item))

	album := photos.Album{ID: "a1", Title: "Trip", CoverPhotoMediaItemID: "i1"}
	require.NoError(t, store.InsertAlbum(&album))
	require.NoError(t, store.AssociateMediaItem("a1", "i1"))
	require.NoError(t, store.InsertFaces("i1", []Face{{X: 1, Y: 2, W: 3, H: 4}}))

	require.NoError(t, store.DeleteMediaItem("i1"))

	// The album survives with a null cover reference.
	got, err := store.GetAlbum("a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.CoverPhotoMediaItemID)

	// Memberships and faces are gone.
	members, err := store.AlbumMediaItems("a1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, ok, err := store.GetFaces("i1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearCache(t *testing.T) {
	store := openTestStore(t)

	item := testMediaItem("id1")
	require.NoError(t, store.InsertMediaItem(&item))
	require.NoError(t, store.InsertAlbum(&photos.Album{ID: "a1", Title: "Trip"}))
	require.NoError(t, store.SetLastSync(time.Now()))

	require.NoError(t, store.ClearCache())

	all, err := store.GetAllMediaItems()
	require.NoError(t, err)
	assert.Empty(t, all)

	albums, err := store.GetAllAlbums()
	require.NoError(t, err)
	assert.Empty(t, albums)

	last, err := store.GetLastSync()
	require.NoError(t, err)
	assert.True(t, last.Equal(time.Unix(0, 0)), "expected epoch, got %v", last)
}

func TestLastSyncDefaultsToEpoch(t *testing.T) {
	store := openTestStore(t)

	last, err := store.GetLastSync()
	require.NoError(t, err)
	assert.True(t, last.Equal(time.Unix(0, 0)), "expected epoch, got %v", last)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SetLastSync(now))

	last, err = store.GetLastSync()
	require.NoError(t, err)
	assert.True(t, last.Equal(now), "expected %v, got %v", now, last)
}

func TestQueryByMimeTypeAndFilename(t *testing.T) {
	store := openTestStore(t)

	item1 := testMediaItem("id1")
	item1.MimeType = "image/png"
	item1.Filename = "holiday_photo.png"
	item2 := testMediaItem("id2")
	item2.Filename = "family.jpg"
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{item1, item2}))

	pngItems, err := store.MediaItemsByMimeType("image/png")
	require.NoError(t, err)
	assert.Equal(t, []string{"id1"}, ids(pngItems))

	nameItems, err := store.MediaItemsByFilename("family")
	require.NoError(t, err)
	assert.Equal(t, []string{"id2"}, ids(nameItems))

	// Substring matches are case-insensitive.
	nameItems, err = store.MediaItemsByFilename("FAMILY")
	require.NoError(t, err)
	assert.Equal(t, []string{"id2"}, ids(nameItems))
}

func TestByTextDeduplicatesUnion(t *testing.T) {
	store := openTestStore(t)

	itemA := testMediaItem("A")
	itemA.Filename = "foo.png"
	itemA.Description = "bar"
	itemB := testMediaItem("B")
	itemB.Filename = "bar.jpg"
	itemB.Description = "foo"
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{itemA, itemB}))

	matches, err := store.MediaItemsByText("foo")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, ids(matches))
}

func TestByDateRange(t *testing.T) {
	store := openTestStore(t)

	early := testMediaItem("early")
	early.MediaMetadata.CreationTime = "2023-01-02T00:00:00Z"
	late := testMediaItem("late")
	late.MediaMetadata.CreationTime = "2023-02-01T00:00:00Z"
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{early, late}))

	items, err := store.MediaItemsByDateRange(
		time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"early"}, ids(items))
}

func TestFavorites(t *testing.T) {
	store := openTestStore(t)

	item1 := testMediaItem("id1")
	item2 := testMediaItem("id2")
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{item1, item2}))

	require.NoError(t, store.SetFavorite("id1", true))

	favs, err := store.Favorites()
	require.NoError(t, err)
	assert.Equal(t, []string{"id1"}, ids(favs))

	require.NoError(t, store.SetFavorite("id1", false))
	favs, err = store.Favorites()
	require.NoError(t, err)
	assert.Empty(t, favs)

	assert.ErrorIs(t, store.SetFavorite("ghost", true), ErrNotFound)
}

func TestCombinedQuery(t *testing.T) {
	store := openTestStore(t)

	eos := testMediaItem("eos")
	eos.MediaMetadata.CreationTime = "2023-01-02T00:00:00Z"
	eos.MediaMetadata.Photo = &photos.Photo{CameraModel: "EOS"}
	d5 := testMediaItem("d5")
	d5.MediaMetadata.CreationTime = "2023-02-01T00:00:00Z"
	d5.MediaMetadata.Photo = &photos.Photo{CameraModel: "D5"}
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{eos, d5}))
	require.NoError(t, store.SetFavorite("eos", true))

	model := "EOS"
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC)
	favorite := true

	items, err := store.QueryMediaItems(Query{
		CameraModel: &model,
		Start:       &start,
		End:         &end,
		Favorite:    &favorite,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"eos"}, ids(items))
}

func TestCombinedQueryWithoutPredicatesEqualsGetAll(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{
		testMediaItem("id1"), testMediaItem("id2"), testMediaItem("id3"),
	}))

	all, err := store.GetAllMediaItems()
	require.NoError(t, err)

	queried, err := store.QueryMediaItems(Query{})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(all), ids(queried))
}

func TestCombinedQueryEqualsIntersectionOfSinglePredicates(t *testing.T) {
	store := openTestStore(t)

	a := testMediaItem("a")
	a.MimeType = "image/png"
	a.Filename = "beach.png"
	b := testMediaItem("b")
	b.MimeType = "image/png"
	b.Filename = "city.png"
	c := testMediaItem("c")
	c.Filename = "beach.jpg"
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{a, b, c}))

	mime := "image/png"
	text := "beach"

	combined, err := store.QueryMediaItems(Query{MimeType: &mime, Text: &text})
	require.NoError(t, err)

	byMime, err := store.MediaItemsByMimeType(mime)
	require.NoError(t, err)
	byText, err := store.MediaItemsByText(text)
	require.NoError(t, err)

	intersection := map[string]bool{}
	for _, item := range byMime {
		intersection[item.ID] = true
	}
	var expected []string
	for _, item := range byText {
		if intersection[item.ID] {
			expected = append(expected, item.ID)
		}
	}
	assert.ElementsMatch(t, expected, ids(combined))
	assert.Equal(t, []string{"a"}, ids(combined))
}

func TestCombinedQueryOrdering(t *testing.T) {
	store := openTestStore(t)

	older := testMediaItem("z-older")
	older.MediaMetadata.CreationTime = "2023-01-01T00:00:00Z"
	newer := testMediaItem("a-newer")
	newer.MediaMetadata.CreationTime = "2023-06-01T00:00:00Z"
	tied := testMediaItem("b-tied")
	tied.MediaMetadata.CreationTime = "2023-06-01T00:00:00Z"
	require.NoError(t, store.InsertMediaItems([]photos.MediaItem{older, newer, tied}))

	items, err := store.QueryMediaItems(Query{})
	require.NoError(t, err)
	// Creation time descending, ties broken by id ascending.
	assert.Equal(t, []string{"a-newer", "b-tied", "z-older"}, ids(items))
}

func TestCloneSharesState(t *testing.T) {
	store := openTestStore(t)
	clone := store.Clone()

	item := testMediaItem("id1")
	require.NoError(t, store.InsertMediaItem(&item))

	got, err := clone.GetMediaItem("id1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestPoisonedStoreRefusesFurtherWork(t *testing.T) {
	store := openTestStore(t)

	err := store.withGuard("boom", func() error {
		panic("boom")
	})
	require.ErrorIs(t, err, ErrPoisoned)

	_, err = store.GetAllMediaItems()
	assert.ErrorIs(t, err, ErrPoisoned)

	// The clone shares the poisoned flag.
	_, err = store.Clone().GetAllMediaItems()
	assert.ErrorIs(t, err, ErrPoisoned)
}

func TestOpenUpgradesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.sqlite")

	// Build a version 1 database by hand and give it one legacy row.
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	for _, stmt := range migrations[0] {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO media_items (id, description, product_url, base_url, mime_type, creation_time, width, height, filename)
		VALUES ('legacy', NULL, 'p', 'b', 'image/jpeg', '2020-05-01T00:00:00Z', '10', '20', 'old.jpg')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	var version int
	require.NoError(t, store.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	// The legacy row survived the metadata split.
	got, err := store.GetMediaItem("legacy")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old.jpg", got.Filename)
	assert.Equal(t, "2020-05-01T00:00:00Z", got.MediaMetadata.CreationTime)
	assert.Equal(t, "10", got.MediaMetadata.Width)

	// The cursor table seeded by migration 3 is present.
	last, err := store.GetLastSync()
	require.NoError(t, err)
	assert.True(t, last.Equal(time.Unix(0, 0)), "expected epoch, got %v", last)
}

func TestQueryPlansUseIndices(t *testing.T) {
	store := openTestStore(t)

	item := testMediaItem("id1")
	require.NoError(t, store.InsertMediaItem(&item))

	datePlan, err := store.explainQueryPlan(
		`SELECT `+mediaColumns+mediaFrom+` WHERE mm.creation_time >= ?1 AND mm.creation_time <= ?2`+mediaOrder,
		"2023-01-01T00:00:00Z", "2023-12-31T00:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, datePlan, "idx_media_metadata_creation_time")

	mimePlan, err := store.explainQueryPlan(
		`SELECT `+mediaColumns+mediaFrom+` WHERE mi.mime_type = ?1`+mediaOrder,
		"image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, mimePlan, "idx_media_items_mime_type")
}
