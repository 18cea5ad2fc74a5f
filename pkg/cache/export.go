package cache

import (
	"database/sql"
	"encoding/json"
	"os"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

// FaceExport is one entry of the face export document: a media item id and
// its detected faces.
type FaceExport struct {
	MediaItemID string `json:"mediaItemId"`
	Faces       []Face `json:"faces"`
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &SerializationError{Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &SerializationError{Err: err}
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &DeserializationError{Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DeserializationError{Err: err}
	}
	return nil
}

// ExportMediaItems writes all cached media items to path as a JSON array.
func (s *Store) ExportMediaItems(path string) error {
	items, err := s.GetAllMediaItems()
	if err != nil {
		return err
	}
	if items == nil {
		items = []photos.MediaItem{}
	}
	return writeJSONFile(path, items)
}

// ImportMediaItems upserts every media item from the JSON array at path.
func (s *Store) ImportMediaItems(path string) error {
	var items []photos.MediaItem
	if err := readJSONFile(path, &items); err != nil {
		return err
	}
	return s.InsertMediaItems(items)
}

// ExportAlbums writes all cached albums to path as a JSON array.
func (s *Store) ExportAlbums(path string) error {
	albums, err := s.GetAllAlbums()
	if err != nil {
		return err
	}
	if albums == nil {
		albums = []photos.Album{}
	}
	return writeJSONFile(path, albums)
}

// ExportFaces writes every stored face record to path.
func (s *Store) ExportFaces(path string) error {
	var records []FaceExport
	err := s.withGuard("export faces", func() error {
		rows, err := s.db.Query(`SELECT media_item_id, faces_json FROM faces ORDER BY media_item_id ASC`)
		if err != nil {
			return dbErr("export faces", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id  string
				raw string
			)
			if err := rows.Scan(&id, &raw); err != nil {
				return dbErr("export faces", err)
			}
			faces := []Face{}
			if err := json.Unmarshal([]byte(raw), &faces); err != nil {
				return &DeserializationError{Err: err}
			}
			records = append(records, FaceExport{MediaItemID: id, Faces: faces})
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}
	if records == nil {
		records = []FaceExport{}
	}
	return writeJSONFile(path, records)
}

// ImportFaces loads face records from path, replacing any stored result for
// the same media item.
func (s *Store) ImportFaces(path string) error {
	var records []FaceExport
	if err := readJSONFile(path, &records); err != nil {
		return err
	}
	return s.withGuard("import faces", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return dbErr("begin face import", err)
		}
		defer tx.Rollback()
		for _, record := range records {
			faces := record.Faces
			if faces == nil {
				faces = []Face{}
			}
			data, err := json.Marshal(faces)
			if err != nil {
				return &SerializationError{Err: err}
			}
			if _, err := tx.Exec(`INSERT INTO faces (media_item_id, faces_json) VALUES (?1, ?2)
				ON CONFLICT(media_item_id) DO UPDATE SET faces_json = excluded.faces_json`,
				record.MediaItemID, string(data)); err != nil {
				return dbErr("import faces", err)
			}
		}
		return tx.Commit()
	})
}

// explainQueryPlan returns the flattened EXPLAIN QUERY PLAN output for the
// statement. Test helper backing the index assertions.
func (s *Store) explainQueryPlan(query string, args ...any) (string, error) {
	var plan string
	err := s.withGuard("explain query plan", func() error {
		rows, err := s.db.Query(`EXPLAIN QUERY PLAN `+query, args...)
		if err != nil {
			return dbErr("explain query plan", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return dbErr("explain query plan", err)
		}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return dbErr("explain query plan", err)
			}
			for _, v := range values {
				switch t := v.(type) {
				case string:
					plan += t + "\n"
				case []byte:
					plan += string(t) + "\n"
				case sql.RawBytes:
					plan += string(t) + "\n"
				}
			}
		}
		return rows.Err()
	})
	return plan, err
}
