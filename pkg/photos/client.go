// Package photos is a typed client for the Google Photos Library API. The
// client is stateless apart from the bearer token, which the synchronizer
// swaps in before each page via SetAccessToken.
package photos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the Library API root.
	DefaultBaseURL = "https://photoslibrary.googleapis.com/v1"

	// requestTimeout bounds a single API call.
	requestTimeout = 30 * time.Second
)

// RequestError reports a transport level failure.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request error: %v", e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RemoteError reports a non-2xx response from the remote service.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("google api error (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to the Google Photos Library API.
type Client struct {
	hc      *http.Client
	baseURL string

	mu          sync.RWMutex
	accessToken string
}

// NewClient creates a client holding the given bearer access token.
func NewClient(accessToken string) *Client {
	return &Client{
		hc:          &http.Client{Timeout: requestTimeout},
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
	}
}

// SetAccessToken replaces the bearer token used for subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// SetBaseURL points the client at a different API root. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// SetHTTPClient replaces the underlying HTTP client, e.g. to adjust
// timeouts.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.hc = hc
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// do issues the request and decodes a JSON response into out (when out is
// non-nil). Any status outside 2xx becomes a RemoteError carrying the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &RequestError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &RequestError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Err: err}
	}
	return nil
}

// ListMediaItems returns one page of the account's media items and the next
// page token, empty when the listing is exhausted.
func (c *Client) ListMediaItems(ctx context.Context, pageSize int, pageToken string) ([]MediaItem, string, error) {
	if mockEnabled() {
		return mockListMediaItems()
	}
	query := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	var resp MediaItemsResponse
	if err := c.do(ctx, http.MethodGet, "/mediaItems", query, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.MediaItems, resp.NextPageToken, nil
}

// GetMediaItem fetches a single media item by id.
func (c *Client) GetMediaItem(ctx context.Context, id string) (*MediaItem, error) {
	if mockEnabled() {
		item := mockMediaItem(id)
		return &item, nil
	}
	var item MediaItem
	if err := c.do(ctx, http.MethodGet, "/mediaItems/"+url.PathEscape(id), nil, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SearchMediaItems returns one page of media items matching the album and
// filters. An empty albumID searches the whole library.
func (c *Client) SearchMediaItems(ctx context.Context, albumID string, pageSize int, pageToken string, filters *Filters) ([]MediaItem, string, error) {
	if mockEnabled() {
		return mockSearchMediaItems()
	}
	body := SearchMediaItemsRequest{
		AlbumID:   albumID,
		PageSize:  pageSize,
		PageToken: pageToken,
		Filters:   filters,
	}
	var resp MediaItemsResponse
	if err := c.do(ctx, http.MethodPost, "/mediaItems:search", nil, body, &resp); err != nil {
		return nil, "", err
	}
	return resp.MediaItems, resp.NextPageToken, nil
}

// UpdateMediaItemDescription updates the human description of a media item.
func (c *Client) UpdateMediaItemDescription(ctx context.Context, id, description string) (*MediaItem, error) {
	if mockEnabled() {
		item := mockMediaItem(id)
		item.Description = description
		return &item, nil
	}
	query := url.Values{"updateMask": {"description"}}
	var item MediaItem
	body := updateMediaItemRequest{Description: description}
	if err := c.do(ctx, http.MethodPatch, "/mediaItems/"+url.PathEscape(id), query, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListAlbums returns one page of the account's albums.
func (c *Client) ListAlbums(ctx context.Context, pageSize int, pageToken string) ([]Album, string, error) {
	if mockEnabled() {
		return mockListAlbums()
	}
	query := url.Values{"pageSize": {strconv.Itoa(pageSize)}}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	var resp AlbumsResponse
	if err := c.do(ctx, http.MethodGet, "/albums", query, nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Albums, resp.NextPageToken, nil
}

// CreateAlbum creates a new album with the given title.
func (c *Client) CreateAlbum(ctx context.Context, title string) (*Album, error) {
	if mockEnabled() {
		return mockCreateAlbum(title), nil
	}
	var album Album
	body := createAlbumRequest{Album: newAlbum{Title: title}}
	if err := c.do(ctx, http.MethodPost, "/albums", nil, body, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// RenameAlbum changes an album's title.
func (c *Client) RenameAlbum(ctx context.Context, id, title string) (*Album, error) {
	if mockEnabled() {
		return mockCreateAlbum(title), nil
	}
	query := url.Values{"updateMask": {"title"}}
	var album Album
	body := updateAlbumRequest{Title: title}
	if err := c.do(ctx, http.MethodPatch, "/albums/"+url.PathEscape(id), query, body, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// DeleteAlbum removes an album.
func (c *Client) DeleteAlbum(ctx context.Context, id string) error {
	if mockEnabled() {
		return nil
	}
	return c.do(ctx, http.MethodDelete, "/albums/"+url.PathEscape(id), nil, nil, nil)
}
