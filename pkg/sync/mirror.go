package sync

import (
	"context"

	"github.com/Christopher-Schulze/googlepicz/pkg/photos"
)

// Remote-mirroring operations: album create/rename/delete and item
// description updates are applied remotely first and reflected into the
// cache only after the remote call succeeded. Media content itself is never
// modified remotely.

// CreateAlbum creates the album remotely and caches it.
func (s *Syncer) CreateAlbum(ctx context.Context, title string) (*photos.Album, error) {
	token, err := s.auth.EnsureAccessTokenValid(ctx)
	if err != nil {
		return nil, err
	}
	s.client.SetAccessToken(token)

	album, err := s.client.CreateAlbum(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertAlbum(album); err != nil {
		return nil, err
	}
	return album, nil
}

// RenameAlbum renames the album remotely and updates it in place locally.
func (s *Syncer) RenameAlbum(ctx context.Context, id, title string) error {
	token, err := s.auth.EnsureAccessTokenValid(ctx)
	if err != nil {
		return err
	}
	s.client.SetAccessToken(token)

	if _, err := s.client.RenameAlbum(ctx, id, title); err != nil {
		return err
	}
	return s.store.RenameAlbum(id, title)
}

// DeleteAlbum deletes the album remotely and drops the local mirror row.
func (s *Syncer) DeleteAlbum(ctx context.Context, id string) error {
	token, err := s.auth.EnsureAccessTokenValid(ctx)
	if err != nil {
		return err
	}
	s.client.SetAccessToken(token)

	if err := s.client.DeleteAlbum(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteAlbum(id)
}

// UpdateMediaItemDescription updates the description remotely and upserts
// the returned item into the cache.
func (s *Syncer) UpdateMediaItemDescription(ctx context.Context, id, description string) error {
	token, err := s.auth.EnsureAccessTokenValid(ctx)
	if err != nil {
		return err
	}
	s.client.SetAccessToken(token)

	item, err := s.client.UpdateMediaItemDescription(ctx, id, description)
	if err != nil {
		return err
	}
	return s.store.InsertMediaItem(item)
}
