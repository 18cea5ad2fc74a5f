package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// epochTimestamp seeds last_sync so a fresh database reports "never synced".
const epochTimestamp = "1970-01-01T00:00:00Z"

// migrations is the ordered schema history. Opening a database applies every
// pending entry inside a single transaction and records the highest applied
// index in schema_version. Entries are append-only; released migrations are
// never edited.
var migrations = [][]string{
	// 1: base media_items plus version bookkeeping.
	{
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS media_items (
			id TEXT PRIMARY KEY,
			description TEXT,
			product_url TEXT NOT NULL,
			base_url TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			creation_time TEXT NOT NULL,
			width TEXT NOT NULL,
			height TEXT NOT NULL,
			filename TEXT NOT NULL
		)`,
	},
	// 2: local-only favorite marker.
	{
		`ALTER TABLE media_items ADD COLUMN is_favorite INTEGER NOT NULL DEFAULT 0`,
	},
	// 3: sync cursor, seeded with the epoch.
	{
		`CREATE TABLE IF NOT EXISTS last_sync (id INTEGER PRIMARY KEY, timestamp TEXT NOT NULL)`,
		`INSERT OR IGNORE INTO last_sync (id, timestamp) VALUES (1, '` + epochTimestamp + `')`,
	},
	// 4: albums and memberships. The cover reference is weak (SET NULL);
	// memberships die with either side (CASCADE).
	{
		`CREATE TABLE IF NOT EXISTS albums (
			id TEXT PRIMARY KEY,
			title TEXT,
			product_url TEXT,
			is_writeable INTEGER NOT NULL DEFAULT 0,
			media_items_count TEXT,
			cover_photo_base_url TEXT,
			cover_photo_media_item_id TEXT REFERENCES media_items(id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS album_media_items (
			album_id TEXT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
			media_item_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			PRIMARY KEY (album_id, media_item_id)
		)`,
	},
	// 5: split metadata into its own table so the creation-time index stays
	// narrow. media_items is rebuilt without the moved columns.
	{
		`CREATE TABLE media_metadata (
			media_item_id TEXT PRIMARY KEY REFERENCES media_items(id) ON DELETE CASCADE,
			creation_time TEXT NOT NULL,
			width TEXT NOT NULL,
			height TEXT NOT NULL
		)`,
		`INSERT INTO media_metadata (media_item_id, creation_time, width, height)
			SELECT id, creation_time, width, height FROM media_items`,
		`CREATE TABLE media_items_new (
			id TEXT PRIMARY KEY,
			description TEXT,
			product_url TEXT NOT NULL,
			base_url TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			filename TEXT NOT NULL,
			is_favorite INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT INTO media_items_new (id, description, product_url, base_url, mime_type, filename, is_favorite)
			SELECT id, description, product_url, base_url, mime_type, filename, is_favorite FROM media_items`,
		`DROP TABLE media_items`,
		`ALTER TABLE media_items_new RENAME TO media_items`,
		`CREATE INDEX idx_media_metadata_creation_time ON media_metadata (creation_time)`,
	},
	// 6: MIME filter index.
	{
		`CREATE INDEX idx_media_items_mime_type ON media_items (mime_type)`,
	},
	// 7: face records, one JSON array per media item.
	{
		`CREATE TABLE IF NOT EXISTS faces (
			media_item_id TEXT PRIMARY KEY REFERENCES media_items(id) ON DELETE CASCADE,
			faces_json TEXT NOT NULL
		)`,
	},
	// 8: camera columns with their filter indices.
	{
		`ALTER TABLE media_metadata ADD COLUMN camera_make TEXT`,
		`ALTER TABLE media_metadata ADD COLUMN camera_model TEXT`,
		`CREATE INDEX idx_media_metadata_camera_make ON media_metadata (camera_make)`,
		`CREATE INDEX idx_media_metadata_camera_model ON media_metadata (camera_model)`,
	},
	// 9: remaining video metadata.
	{
		`ALTER TABLE media_metadata ADD COLUMN video_fps REAL`,
		`ALTER TABLE media_metadata ADD COLUMN video_status TEXT`,
	},
	// 10: album title search.
	{
		`CREATE INDEX idx_albums_title ON albums (title)`,
	},
	// 11: favorites are a small subset; a partial index keeps it cheap.
	{
		`CREATE INDEX idx_media_items_is_favorite ON media_items (is_favorite) WHERE is_favorite = 1`,
	},
	// 12: reverse membership lookups (items_of_album, cascading deletes).
	{
		`CREATE INDEX idx_album_media_items_media_item_id ON album_media_items (media_item_id)`,
	},
	// 13: clean up rows that predate enforcement, then rely on
	// PRAGMA foreign_keys at open.
	{
		`DELETE FROM album_media_items WHERE media_item_id NOT IN (SELECT id FROM media_items)`,
		`DELETE FROM album_media_items WHERE album_id NOT IN (SELECT id FROM albums)`,
		`UPDATE albums SET cover_photo_media_item_id = NULL
			WHERE cover_photo_media_item_id IS NOT NULL
			AND cover_photo_media_item_id NOT IN (SELECT id FROM media_items)`,
	},
}

// SchemaVersion is the version a fully migrated database reports.
var SchemaVersion = len(migrations)

// currentVersion reads schema_version, returning 0 for a fresh database.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isMissingTable(err) {
			return 0, nil
		}
		return 0, dbErr("read schema version", err)
	}
	return version, nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// applyMigrations brings the database to the latest schema version. All
// pending migrations run in one transaction so a failure leaves the old
// version fully intact.
func applyMigrations(db *sql.DB) error {
	version, err := currentVersion(db)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return dbErr("migrate", fmt.Errorf("database schema version %d is newer than supported %d", version, SchemaVersion))
	}
	if version == SchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return dbErr("begin migration", err)
	}
	defer tx.Rollback()

	for i := version; i < SchemaVersion; i++ {
		for _, stmt := range migrations[i] {
			if _, err := tx.Exec(stmt); err != nil {
				return dbErr(fmt.Sprintf("apply migration %d", i+1), err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return dbErr("update schema version", err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return dbErr("update schema version", err)
	}
	if err := tx.Commit(); err != nil {
		return dbErr("commit migration", err)
	}
	return nil
}
