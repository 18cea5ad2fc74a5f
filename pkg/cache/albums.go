package cache

import (
	"database/sql"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

const albumColumns = `id, title, product_url, is_writeable, media_items_count, cover_photo_base_url, cover_photo_media_item_id`

func scanAlbum(row rowScanner) (photos.Album, error) {
	var (
		album      photos.Album
		title      sql.NullString
		productURL sql.NullString
		writeable  int
		count      sql.NullString
		coverURL   sql.NullString
		coverID    sql.NullString
	)
	err := row.Scan(&album.ID, &title, &productURL, &writeable, &count, &coverURL, &coverID)
	if err != nil {
		return album, err
	}
	album.Title = title.String
	album.ProductURL = productURL.String
	album.IsWriteable = writeable != 0
	album.MediaItemsCount = count.String
	album.CoverPhotoBaseURL = coverURL.String
	album.CoverPhotoMediaItemID = coverID.String
	return album, nil
}

// InsertAlbum upserts an album by id. A cover reference naming an item that
// is not cached is stored as null rather than rejected.
func (s *Store) InsertAlbum(album *photos.Album) error {
	return s.withGuard("insert album", func() error {
		writeable := 0
		if album.IsWriteable {
			writeable = 1
		}
		var coverID any
		if album.CoverPhotoMediaItemID != "" {
			var exists int
			err := s.db.QueryRow(`SELECT 1 FROM media_items WHERE id = ?1`, album.CoverPhotoMediaItemID).Scan(&exists)
			switch err {
			case nil:
				coverID = album.CoverPhotoMediaItemID
			case sql.ErrNoRows:
				coverID = nil
			default:
				return dbErr("check cover reference", err)
			}
		}
		_, err := s.db.Exec(`INSERT INTO albums (id, title, product_url, is_writeable, media_items_count, cover_photo_base_url, cover_photo_media_item_id)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				product_url = excluded.product_url,
				is_writeable = excluded.is_writeable,
				media_items_count = excluded.media_items_count,
				cover_photo_base_url = excluded.cover_photo_base_url,
				cover_photo_media_item_id = excluded.cover_photo_media_item_id`,
			album.ID, nullable(album.Title), nullable(album.ProductURL), writeable,
			nullable(album.MediaItemsCount), nullable(album.CoverPhotoBaseURL), coverID)
		if err != nil {
			return dbErr("insert album", err)
		}
		return nil
	})
}

// GetAllAlbums returns every cached album, ordered by title.
func (s *Store) GetAllAlbums() ([]photos.Album, error) {
	var albums []photos.Album
	err := s.withGuard("get all albums", func() error {
		rows, err := s.db.Query(`SELECT ` + albumColumns + ` FROM albums ORDER BY title ASC, id ASC`)
		if err != nil {
			return dbErr("query albums", err)
		}
		defer rows.Close()
		for rows.Next() {
			album, err := scanAlbum(rows)
			if err != nil {
				return dbErr("scan album", err)
			}
			albums = append(albums, album)
		}
		return rows.Err()
	})
	return albums, err
}

// GetAlbum returns the album with the given id, or nil when absent.
func (s *Store) GetAlbum(id string) (*photos.Album, error) {
	var found *photos.Album
	err := s.withGuard("get album", func() error {
		row := s.db.QueryRow(`SELECT `+albumColumns+` FROM albums WHERE id = ?1`, id)
		album, err := scanAlbum(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return dbErr("query album", err)
		}
		found = &album
		return nil
	})
	return found, err
}

// RenameAlbum updates an album's title in place.
func (s *Store) RenameAlbum(id, title string) error {
	return s.withGuard("rename album", func() error {
		res, err := s.db.Exec(`UPDATE albums SET title = ?1 WHERE id = ?2`, title, id)
		if err != nil {
			return dbErr("rename album", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAlbum removes an album; its memberships cascade.
func (s *Store) DeleteAlbum(id string) error {
	return s.withGuard("delete album", func() error {
		if _, err := s.db.Exec(`DELETE FROM albums WHERE id = ?1`, id); err != nil {
			return dbErr("delete album", err)
		}
		return nil
	})
}

// SearchAlbums returns albums whose title contains the pattern
// (case-insensitive).
func (s *Store) SearchAlbums(pattern string) ([]photos.Album, error) {
	var albums []photos.Album
	err := s.withGuard("search albums", func() error {
		rows, err := s.db.Query(`SELECT `+albumColumns+` FROM albums WHERE title LIKE ?1 ORDER BY title ASC, id ASC`,
			likePattern(pattern))
		if err != nil {
			return dbErr("search albums", err)
		}
		defer rows.Close()
		for rows.Next() {
			album, err := scanAlbum(rows)
			if err != nil {
				return dbErr("scan album", err)
			}
			albums = append(albums, album)
		}
		return rows.Err()
	})
	return albums, err
}

// AssociateMediaItem records album membership. Membership is a set: adding
// an existing pair is a no-op.
func (s *Store) AssociateMediaItem(albumID, mediaItemID string) error {
	return s.withGuard("associate media item", func() error {
		_, err := s.db.Exec(`INSERT OR IGNORE INTO album_media_items (album_id, media_item_id) VALUES (?1, ?2)`,
			albumID, mediaItemID)
		if err != nil {
			return dbErr("associate media item", err)
		}
		return nil
	})
}

// AlbumMediaItems returns every media item belonging to the album.
func (s *Store) AlbumMediaItems(albumID string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query album media items",
		` JOIN album_media_items ami ON ami.media_item_id = mi.id WHERE ami.album_id = ?1`, albumID)
}
