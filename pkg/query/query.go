// Package query is the search facade over the cache: composable predicates,
// one canonical SQL path, and both blocking and channel-based entry points
// that agree on their result sets.
package query

import (
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

// Params are the optional search predicates. Nil fields are skipped; set
// fields combine with AND. Text matches filename OR description substring,
// case-insensitively.
type Params struct {
	CameraModel *string
	CameraMake  *string
	Start       *time.Time
	End         *time.Time
	Favorite    *bool
	MimeType    *string
	Text        *string
}

// Result is the asynchronous search outcome.
type Result struct {
	Items []photos.MediaItem
	Err   error
}

// Engine answers media searches from the cache.
type Engine struct {
	store *cache.Store
}

// NewEngine creates a query engine over the given cache store.
func NewEngine(store *cache.Store) *Engine {
	return &Engine{store: store}
}

// Search runs the combined query. Results are ordered by creation time
// descending, ties broken by id ascending.
func (e *Engine) Search(params Params) ([]photos.MediaItem, error) {
	return e.store.QueryMediaItems(cache.Query{
		CameraModel: params.CameraModel,
		CameraMake:  params.CameraMake,
		Start:       params.Start,
		End:         params.End,
		Favorite:    params.Favorite,
		MimeType:    params.MimeType,
		Text:        params.Text,
	})
}

// SearchAsync runs Search off the calling goroutine and delivers the result
// on the returned channel. The channel receives exactly one value.
func (e *Engine) SearchAsync(params Params) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		items, err := e.Search(params)
		out <- Result{Items: items, Err: err}
	}()
	return out
}

// ByText returns the deduplicated union of filename and description
// substring matches.
func (e *Engine) ByText(pattern string) ([]photos.MediaItem, error) {
	return e.store.MediaItemsByText(pattern)
}
