package cache

import (
	"database/sql"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

// mediaColumns is the shared select list; every media query goes through the
// media_items/media_metadata join and scanMediaItem.
const mediaColumns = `mi.id, mi.description, mi.product_url, mi.base_url, mi.mime_type, mi.filename,
	mm.creation_time, mm.width, mm.height, mm.camera_make, mm.camera_model, mm.video_fps, mm.video_status`

const mediaFrom = ` FROM media_items mi JOIN media_metadata mm ON mm.media_item_id = mi.id`

const mediaOrder = ` ORDER BY mm.creation_time DESC, mi.id ASC`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMediaItem rebuilds a MediaItem from one joined row. Camera and video
// columns are stored flat: rows with video fps/status rebuild a Video block,
// rows with only camera data rebuild a Photo block.
func scanMediaItem(row rowScanner) (photos.MediaItem, error) {
	var (
		item        photos.MediaItem
		description sql.NullString
		cameraMake  sql.NullString
		cameraModel sql.NullString
		videoFps    sql.NullFloat64
		videoStatus sql.NullString
	)
	err := row.Scan(
		&item.ID, &description, &item.ProductURL, &item.BaseURL, &item.MimeType, &item.Filename,
		&item.MediaMetadata.CreationTime, &item.MediaMetadata.Width, &item.MediaMetadata.Height,
		&cameraMake, &cameraModel, &videoFps, &videoStatus,
	)
	if err != nil {
		return item, err
	}
	item.Description = description.String

	switch {
	case videoFps.Valid || videoStatus.Valid:
		item.MediaMetadata.Video = &photos.Video{
			CameraMake:  cameraMake.String,
			CameraModel: cameraModel.String,
			Fps:         videoFps.Float64,
			Status:      videoStatus.String,
		}
	case cameraMake.Valid || cameraModel.Valid:
		item.MediaMetadata.Photo = &photos.Photo{
			CameraMake:  cameraMake.String,
			CameraModel: cameraModel.String,
		}
	}
	return item, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// insertMediaItemTx upserts one item. The media_items upsert deliberately
// leaves is_favorite alone: favorites are local state and survive re-sync.
func insertMediaItemTx(tx *sql.Tx, item *photos.MediaItem) error {
	_, err := tx.Exec(`INSERT INTO media_items (id, description, product_url, base_url, mime_type, filename)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			product_url = excluded.product_url,
			base_url = excluded.base_url,
			mime_type = excluded.mime_type,
			filename = excluded.filename`,
		item.ID, nullable(item.Description), item.ProductURL, item.BaseURL, item.MimeType, item.Filename)
	if err != nil {
		return dbErr("insert media item", err)
	}

	var fps, status any
	if v := item.MediaMetadata.Video; v != nil {
		fps = v.Fps
		status = nullable(v.Status)
	}
	_, err = tx.Exec(`INSERT INTO media_metadata (media_item_id, creation_time, width, height, camera_make, camera_model, video_fps, video_status)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)
		ON CONFLICT(media_item_id) DO UPDATE SET
			creation_time = excluded.creation_time,
			width = excluded.width,
			height = excluded.height,
			camera_make = excluded.camera_make,
			camera_model = excluded.camera_model,
			video_fps = excluded.video_fps,
			video_status = excluded.video_status`,
		item.ID, item.MediaMetadata.CreationTime, item.MediaMetadata.Width, item.MediaMetadata.Height,
		nullable(item.CameraMake()), nullable(item.CameraModel()), fps, status)
	if err != nil {
		return dbErr("insert media metadata", err)
	}
	return nil
}

// InsertMediaItem upserts a single media item by id.
func (s *Store) InsertMediaItem(item *photos.MediaItem) error {
	return s.withGuard("insert media item", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return dbErr("begin insert", err)
		}
		defer tx.Rollback()
		if err := insertMediaItemTx(tx, item); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// InsertMediaItems upserts a batch of items in a single transaction. The
// synchronizer writes each remote page through this.
func (s *Store) InsertMediaItems(items []photos.MediaItem) error {
	return s.withGuard("insert media items", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return dbErr("begin batch insert", err)
		}
		defer tx.Rollback()
		for i := range items {
			if err := insertMediaItemTx(tx, &items[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetMediaItem returns the item with the given id, or nil when absent.
func (s *Store) GetMediaItem(id string) (*photos.MediaItem, error) {
	var found *photos.MediaItem
	err := s.withGuard("get media item", func() error {
		row := s.db.QueryRow(`SELECT `+mediaColumns+mediaFrom+` WHERE mi.id = ?1`, id)
		item, err := scanMediaItem(row)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return dbErr("query media item", err)
		}
		found = &item
		return nil
	})
	return found, err
}

// queryMediaItems runs a select built from the shared column list and
// collects the rows.
func (s *Store) queryMediaItems(op, where string, args ...any) ([]photos.MediaItem, error) {
	var items []photos.MediaItem
	err := s.withGuard(op, func() error {
		rows, err := s.db.Query(`SELECT `+mediaColumns+mediaFrom+where+mediaOrder, args...)
		if err != nil {
			return dbErr(op, err)
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scanMediaItem(rows)
			if err != nil {
				return dbErr(op, err)
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return dbErr(op, err)
		}
		return nil
	})
	return items, err
}

// GetAllMediaItems returns every cached media item.
func (s *Store) GetAllMediaItems() ([]photos.MediaItem, error) {
	return s.queryMediaItems("get all media items", "")
}

// DeleteMediaItem removes an item. Memberships and faces cascade; album
// cover references become null.
func (s *Store) DeleteMediaItem(id string) error {
	return s.withGuard("delete media item", func() error {
		if _, err := s.db.Exec(`DELETE FROM media_items WHERE id = ?1`, id); err != nil {
			return dbErr("delete media item", err)
		}
		return nil
	})
}

// MediaItemsByMimeType returns all items with the exact MIME type.
func (s *Store) MediaItemsByMimeType(mime string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by mime type", ` WHERE mi.mime_type = ?1`, mime)
}

// MediaItemsByFilename returns items whose filename contains the pattern
// (case-insensitive).
func (s *Store) MediaItemsByFilename(pattern string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by filename", ` WHERE mi.filename LIKE ?1`, likePattern(pattern))
}

// MediaItemsByDescription returns items whose description contains the
// pattern (case-insensitive).
func (s *Store) MediaItemsByDescription(pattern string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by description", ` WHERE mi.description LIKE ?1`, likePattern(pattern))
}

// MediaItemsByText returns the union of filename and description matches,
// deduplicated by id.
func (s *Store) MediaItemsByText(pattern string) ([]photos.MediaItem, error) {
	like := likePattern(pattern)
	return s.queryMediaItems("query by text", ` WHERE (mi.filename LIKE ?1 OR mi.description LIKE ?1)`, like)
}

// MediaItemsByCameraMake returns all items taken with the given camera make.
func (s *Store) MediaItemsByCameraMake(cameraMake string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by camera make", ` WHERE mm.camera_make = ?1`, cameraMake)
}

// MediaItemsByCameraModel returns all items taken with the given camera
// model.
func (s *Store) MediaItemsByCameraModel(model string) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by camera model", ` WHERE mm.camera_model = ?1`, model)
}

// MediaItemsByDateRange returns items created within [start, end].
func (s *Store) MediaItemsByDateRange(start, end time.Time) ([]photos.MediaItem, error) {
	return s.queryMediaItems("query by date range",
		` WHERE mm.creation_time >= ?1 AND mm.creation_time <= ?2`,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

// Favorites returns all items marked as favorite.
func (s *Store) Favorites() ([]photos.MediaItem, error) {
	return s.queryMediaItems("query favorites", ` WHERE mi.is_favorite = 1`)
}

// SetFavorite marks or unmarks an item as favorite.
func (s *Store) SetFavorite(id string, favorite bool) error {
	return s.withGuard("set favorite", func() error {
		fav := 0
		if favorite {
			fav = 1
		}
		res, err := s.db.Exec(`UPDATE media_items SET is_favorite = ?1 WHERE id = ?2`, fav, id)
		if err != nil {
			return dbErr("set favorite", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// IsFavorite reports whether the item is marked as favorite.
func (s *Store) IsFavorite(id string) (bool, error) {
	var favorite bool
	err := s.withGuard("is favorite", func() error {
		var fav int
		if err := s.db.QueryRow(`SELECT is_favorite FROM media_items WHERE id = ?1`, id).Scan(&fav); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return dbErr("is favorite", err)
		}
		favorite = fav != 0
		return nil
	})
	return favorite, err
}

func likePattern(pattern string) string {
	return "%" + pattern + "%"
}
