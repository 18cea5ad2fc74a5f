package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

// Query carries the optional predicates of the combined search. Nil fields
// are skipped; set fields are combined with AND.
type Query struct {
	CameraModel *string
	CameraMake  *string
	Start       *time.Time
	End         *time.Time
	Favorite    *bool
	MimeType    *string
	Text        *string
}

// QueryMediaItems applies every non-nil predicate conjunctively in a single
// SQL statement. This is the canonical search path; the single-predicate
// helpers exist for callers that need exactly one filter. Results are
// ordered by creation time descending, ties broken by id ascending.
func (s *Store) QueryMediaItems(q Query) ([]photos.MediaItem, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "?" + strconv.Itoa(len(args))
	}

	if q.CameraModel != nil {
		conds = append(conds, "mm.camera_model = "+arg(*q.CameraModel))
	}
	if q.CameraMake != nil {
		conds = append(conds, "mm.camera_make = "+arg(*q.CameraMake))
	}
	if q.Start != nil {
		conds = append(conds, "mm.creation_time >= "+arg(q.Start.UTC().Format(time.RFC3339)))
	}
	if q.End != nil {
		conds = append(conds, "mm.creation_time <= "+arg(q.End.UTC().Format(time.RFC3339)))
	}
	if q.Favorite != nil {
		fav := 0
		if *q.Favorite {
			fav = 1
		}
		conds = append(conds, "mi.is_favorite = "+arg(fav))
	}
	if q.MimeType != nil {
		conds = append(conds, "mi.mime_type = "+arg(*q.MimeType))
	}
	if q.Text != nil {
		like := arg(likePattern(*q.Text))
		conds = append(conds, "(mi.filename LIKE "+like+" OR mi.description LIKE "+like+")")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	return s.queryMediaItems("combined query", where, args...)
}
