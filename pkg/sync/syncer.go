// Package sync drives the incremental mirror of the remote photo library
// into the local cache, and supervises the long-running periodic tasks
// around it.
package sync

import (
	"context"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/auth"
	"github.com/Christopher-Schulze/googlepicz/pkg/cache"
	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
	"github.com/Christopher-Schulze/googlepicz/util"
	"github.com/Christopher-Schulze/googlepicz/util/log"
	"golang.org/x/time/rate"
)

const (
	// pageSize is the remote page size for media item listings.
	pageSize = 100

	// albumPageSize is the remote page size for album listings.
	albumPageSize = 50

	// pageDelay is the fixed pause between remote pages; we are a polite
	// client.
	pageDelay = 500 * time.Millisecond
)

// Syncer pulls pages from the remote API into the cache, reporting progress
// and status on its sinks. Sinks are optional; attach them before starting a
// pass and drain them while it runs.
type Syncer struct {
	auth   *auth.Service
	client *photos.Client
	store  *cache.Store

	limiter    *rate.Limiter
	retryDelay time.Duration

	progress chan<- ProgressEvent
	status   chan<- StatusEvent
}

// NewSyncer creates a syncer over the given auth service, API client and
// cache store.
func NewSyncer(authService *auth.Service, client *photos.Client, store *cache.Store) *Syncer {
	return &Syncer{
		auth:       authService,
		client:     client,
		store:      store,
		limiter:    rate.NewLimiter(rate.Every(pageDelay), 1),
		retryDelay: time.Second,
	}
}

// SetProgressSink attaches the progress stream.
func (s *Syncer) SetProgressSink(ch chan<- ProgressEvent) {
	s.progress = ch
}

// SetStatusSink attaches the status stream.
func (s *Syncer) SetStatusSink(ch chan<- StatusEvent) {
	s.status = ch
}

func (s *Syncer) emitProgress(event ProgressEvent) {
	if s.progress != nil {
		s.progress <- event
	}
}

func (s *Syncer) emitStatus(message string) {
	if s.status == nil {
		return
	}
	lastSynced, err := s.store.GetLastSync()
	if err != nil {
		lastSynced = time.Unix(0, 0)
	}
	s.status <- StatusEvent{LastSynced: lastSynced, Message: message}
}

// incrementalFilters builds the date filter bounding the next pass to
// everything since the last successful sync. A cursor still at the epoch
// means a full fetch with no filter.
func (s *Syncer) incrementalFilters() (*photos.Filters, error) {
	lastSync, err := s.store.GetLastSync()
	if err != nil {
		return nil, err
	}
	if !lastSync.After(time.Unix(0, 0)) {
		return nil, nil
	}
	lastSync = lastSync.UTC()
	return &photos.Filters{
		DateFilter: &photos.DateFilter{
			Ranges: []photos.DateRange{{
				StartDate: photos.Date{
					Year:  lastSync.Year(),
					Month: int(lastSync.Month()),
					Day:   lastSync.Day(),
				},
			}},
		},
	}, nil
}

// shutdownRequested polls the shutdown signal without blocking.
func shutdownRequested(shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
		return true
	default:
		return false
	}
}

// sleep waits for d, returning early (false) on shutdown or context
// cancellation.
func sleep(ctx context.Context, shutdown <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-shutdown:
		return false
	case <-ctx.Done():
		return false
	}
}

// fetchPage loads one remote page, permitting itself a single implicit
// refresh-and-retry on failure: both transport and remote errors can mean an
// expired token.
func (s *Syncer) fetchPage(ctx context.Context, shutdown <-chan struct{}, albumID, pageToken string, filters *photos.Filters) ([]photos.MediaItem, string, error) {
	token, err := s.auth.EnsureAccessTokenValid(ctx)
	if err != nil {
		return nil, "", err
	}
	s.client.SetAccessToken(token)

	items, next, err := s.client.SearchMediaItems(ctx, albumID, pageSize, pageToken, filters)
	if err == nil {
		return items, next, nil
	}

	s.emitProgress(ProgressEvent{Kind: ProgressRetrying, RetryIn: s.retryDelay})
	if !sleep(ctx, shutdown, s.retryDelay) {
		return nil, "", err
	}
	token, refreshErr := s.auth.RefreshAccessToken(ctx)
	if refreshErr != nil {
		return nil, "", err
	}
	s.client.SetAccessToken(token)
	return s.client.SearchMediaItems(ctx, albumID, pageSize, pageToken, filters)
}

// SyncMediaItems runs one full pass: pages of the remote library are
// upserted into the cache, the cursor advances only on success, and a
// shutdown signal halts the pass cleanly between pages.
func (s *Syncer) SyncMediaItems(ctx context.Context, shutdown <-chan struct{}) error {
	log.Print("Starting media item synchronization...")
	s.emitStatus("Sync started")
	s.emitProgress(ProgressEvent{Kind: ProgressStarted})

	filters, err := s.incrementalFilters()
	if err != nil {
		return err
	}

	var (
		pageToken string
		total     = util.NewSafeCounter()
	)
	for {
		if shutdownRequested(shutdown) {
			log.Print("Sync cancelled by shutdown signal.")
			return nil
		}
		// The limiter spaces remote page fetches at least pageDelay apart.
		// It is shared by every pass of this syncer, so the first page of a
		// pass goes out immediately only when no page was fetched within
		// the last pageDelay.
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		items, next, err := s.fetchPage(ctx, shutdown, "", pageToken, filters)
		if err != nil {
			s.emitStatus("Sync failed")
			return err
		}
		if len(items) == 0 {
			break
		}

		if err := s.store.InsertMediaItems(items); err != nil {
			s.emitStatus("Sync failed")
			return err
		}
		for range items {
			s.emitProgress(ProgressEvent{Kind: ProgressItemSynced, Count: total.Increment()})
		}
		log.Debugf("Synced %d media items so far.", total.Value())

		if next == "" {
			break
		}
		pageToken = next
	}

	if err := s.store.SetLastSync(time.Now()); err != nil {
		return err
	}
	log.Printf("Synchronization complete. Total media items synced: %d.", total.Value())
	s.emitProgress(ProgressEvent{Kind: ProgressFinished, Count: total.Value()})
	s.emitStatus("Sync completed")
	return nil
}

// SyncAlbums mirrors the remote album list and memberships into the cache.
func (s *Syncer) SyncAlbums(ctx context.Context, shutdown <-chan struct{}) error {
	log.Print("Starting album synchronization...")

	var pageToken string
	for {
		if shutdownRequested(shutdown) {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		token, err := s.auth.EnsureAccessTokenValid(ctx)
		if err != nil {
			return err
		}
		s.client.SetAccessToken(token)

		albums, next, err := s.client.ListAlbums(ctx, albumPageSize, pageToken)
		if err != nil {
			return err
		}
		if len(albums) == 0 {
			break
		}

		for i := range albums {
			if err := s.store.InsertAlbum(&albums[i]); err != nil {
				return err
			}
			if err := s.syncAlbumMembers(ctx, shutdown, albums[i].ID); err != nil {
				return err
			}
		}

		if next == "" {
			break
		}
		pageToken = next
	}

	log.Print("Album synchronization complete.")
	return nil
}

// syncAlbumMembers pages the items of one album and records memberships.
func (s *Syncer) syncAlbumMembers(ctx context.Context, shutdown <-chan struct{}, albumID string) error {
	var pageToken string
	for {
		if shutdownRequested(shutdown) {
			return nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		items, next, err := s.fetchPage(ctx, shutdown, albumID, pageToken, nil)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		if err := s.store.InsertMediaItems(items); err != nil {
			return err
		}
		for i := range items {
			if err := s.store.AssociateMediaItem(albumID, items[i].ID); err != nil {
				return err
			}
		}

		if next == "" {
			return nil
		}
		pageToken = next
	}
}
