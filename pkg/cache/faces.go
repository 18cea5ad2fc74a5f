package cache

import (
	"database/sql"
	"encoding/json"
)

// Face is one detected face on a media item: an integer bounding box and an
// optional person name. Faces are stored per item as a JSON array; the face
// index within that array identifies a face for renames.
type Face struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
	Name string `json:"name,omitempty"`
}

// InsertFaces stores the detection result for a media item, replacing any
// previous result. An empty or nil list is stored as an empty array so
// "detection ran, found nothing" is distinguishable from "never detected".
func (s *Store) InsertFaces(mediaItemID string, faces []Face) error {
	if faces == nil {
		faces = []Face{}
	}
	data, err := json.Marshal(faces)
	if err != nil {
		return &SerializationError{Err: err}
	}
	return s.withGuard("insert faces", func() error {
		_, err := s.db.Exec(`INSERT INTO faces (media_item_id, faces_json) VALUES (?1, ?2)
			ON CONFLICT(media_item_id) DO UPDATE SET faces_json = excluded.faces_json`,
			mediaItemID, string(data))
		if err != nil {
			return dbErr("insert faces", err)
		}
		return nil
	})
}

// GetFaces returns the stored faces for the item. ok is false when detection
// never ran for the item; a stored empty result yields ok true and an empty
// list.
func (s *Store) GetFaces(mediaItemID string) (faces []Face, ok bool, err error) {
	err = s.withGuard("get faces", func() error {
		var raw string
		if err := s.db.QueryRow(`SELECT faces_json FROM faces WHERE media_item_id = ?1`, mediaItemID).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return dbErr("query faces", err)
		}
		list := []Face{}
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return &DeserializationError{Err: err}
		}
		faces = list
		ok = true
		return nil
	})
	return faces, ok, err
}

// UpdateFaceName sets the person name of the face at the given index.
// Unknown items and out-of-range indices fail with ErrNotFound.
func (s *Store) UpdateFaceName(mediaItemID string, index int, name string) error {
	return s.withGuard("update face name", func() error {
		var raw string
		if err := s.db.QueryRow(`SELECT faces_json FROM faces WHERE media_item_id = ?1`, mediaItemID).Scan(&raw); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return dbErr("query faces", err)
		}
		var faces []Face
		if err := json.Unmarshal([]byte(raw), &faces); err != nil {
			return &DeserializationError{Err: err}
		}
		if index < 0 || index >= len(faces) {
			return ErrNotFound
		}
		faces[index].Name = name
		data, err := json.Marshal(faces)
		if err != nil {
			return &SerializationError{Err: err}
		}
		if _, err := s.db.Exec(`UPDATE faces SET faces_json = ?1 WHERE media_item_id = ?2`, string(data), mediaItemID); err != nil {
			return dbErr("update faces", err)
		}
		return nil
	})
}
