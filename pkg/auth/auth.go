// Package auth implements the OAuth2 authorization code flow with PKCE for
// the Google Photos Library API, plus refresh and the ensure-valid guard the
// synchronizer calls before every page.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Christopher-Schulze/googlepicz/pkg/credentials"
	"github.com/Christopher-Schulze/googlepicz/util/log"
	"github.com/google/uuid"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	authURL         = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	revokeURL       = "https://oauth2.googleapis.com/revoke"

	scopePhotosReadonly = "https://www.googleapis.com/auth/photoslibrary.readonly"

	// tokenURLEnv overrides the token endpoint for tests.
	tokenURLEnv = "GOOGLE_TOKEN_URL"

	clientIDEnv     = "GOOGLE_CLIENT_ID"
	clientSecretEnv = "GOOGLE_CLIENT_SECRET"

	// flowTimeout bounds the wait for the browser redirect.
	flowTimeout = 2 * time.Minute

	// refreshLeeway refreshes tokens that expire within this window.
	refreshLeeway = 5 * time.Minute
)

// ErrNoRefreshToken is returned when a refresh is requested but no refresh
// token has been stored.
var ErrNoRefreshToken = errors.New("auth: no refresh token available")

// ErrMissingClientConfig is returned when GOOGLE_CLIENT_ID or
// GOOGLE_CLIENT_SECRET are not set.
var ErrMissingClientConfig = errors.New("auth: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")

// RemoteRejectedError reports that the authorization server rejected a token
// request.
type RemoteRejectedError struct {
	StatusCode int
	Body       string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("auth: token endpoint rejected request (status %d): %s", e.StatusCode, e.Body)
}

// TransportError reports a network level failure talking to the
// authorization server.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("auth: network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Service drives the OAuth flow and owns token refresh. Tokens are persisted
// through the credential store; callers never read them from anywhere else.
type Service struct {
	creds      credentials.Store
	httpClient *http.Client
	group      singleflight.Group
}

// NewService creates an auth service backed by the given credential store.
func NewService(creds credentials.Store) *Service {
	return &Service{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func tokenURL() string {
	if u := os.Getenv(tokenURLEnv); u != "" {
		return u
	}
	return defaultTokenURL
}

func (s *Service) oauthConfig(redirectPort uint16) (*oauth2.Config, error) {
	clientID := os.Getenv(clientIDEnv)
	clientSecret := os.Getenv(clientSecretEnv)
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingClientConfig
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL(),
		},
		Scopes: []string{scopePhotosReadonly},
	}
	if redirectPort != 0 {
		cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", redirectPort)
	}
	return cfg, nil
}

// mockTokensPresent reports whether the MOCK_* keyring hooks supply tokens,
// in which case the interactive flow is skipped entirely.
func mockTokensPresent() bool {
	return os.Getenv("MOCK_ACCESS_TOKEN") != "" &&
		(os.Getenv("MOCK_KEYRING") != "" || os.Getenv("MOCK_KEYRING_FAIL") != "")
}

// Authenticate runs the PKCE authorization code flow: it opens the system
// browser, waits for exactly one redirect on the loopback listener, verifies
// the CSRF state, exchanges the code and persists the resulting tokens.
func (s *Service) Authenticate(ctx context.Context, redirectPort uint16) error {
	if mockTokensPresent() {
		// Persist the mock tokens through the store so the fallback
		// selection still runs.
		if err := s.creds.Store(credentials.KeyAccessToken, os.Getenv("MOCK_ACCESS_TOKEN")); err != nil {
			return err
		}
		if rt := os.Getenv("MOCK_REFRESH_TOKEN"); rt != "" {
			if err := s.creds.Store(credentials.KeyRefreshToken, rt); err != nil {
				return err
			}
		}
		return nil
	}

	cfg, err := s.oauthConfig(redirectPort)
	if err != nil {
		return err
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	code, err := s.awaitRedirect(ctx, cfg, redirectPort, state, verifier)
	if err != nil {
		return err
	}

	token, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return mapTokenError(err)
	}
	if err := s.saveToken(token); err != nil {
		return err
	}
	log.Print("Google Photos authentication successful.")
	return nil
}

// awaitRedirect serves the single-shot loopback listener, opens the browser
// and returns the authorization code from the one accepted redirect. The
// listener is torn down before returning, success or not.
func (s *Service) awaitRedirect(ctx context.Context, cfg *oauth2.Config, port uint16, state, verifier string) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			errChan <- errors.New("auth: invalid state parameter")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing code", http.StatusBadRequest)
			errChan <- errors.New("auth: missing code parameter")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(callbackPage)); err != nil {
			log.Printf("Failed to write callback response: %v", err)
		}
		codeChan <- code
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shut down callback server gracefully: %v", err)
		}
	}()

	browseURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
	log.Printf("Opening browser for OAuth: %s", browseURL)
	if err := open.Run(browseURL); err != nil {
		return "", fmt.Errorf("auth: failed to open browser: %w", err)
	}

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(flowTimeout):
		return "", errors.New("auth: authentication timed out")
	}
}

func (s *Service) saveToken(token *oauth2.Token) error {
	if err := s.creds.Store(credentials.KeyAccessToken, token.AccessToken); err != nil {
		return err
	}
	if token.RefreshToken != "" {
		if err := s.creds.Store(credentials.KeyRefreshToken, token.RefreshToken); err != nil {
			return err
		}
	}
	if !token.Expiry.IsZero() {
		if err := s.creds.Store(credentials.KeyTokenExpiry, token.Expiry.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

// RefreshAccessToken exchanges the stored refresh token for a fresh access
// token, persists it and returns it.
func (s *Service) RefreshAccessToken(ctx context.Context) (string, error) {
	refreshToken, err := s.creds.Load(credentials.KeyRefreshToken)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return "", ErrNoRefreshToken
		}
		return "", err
	}

	cfg, err := s.oauthConfig(0)
	if err != nil {
		return "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return "", mapTokenError(err)
	}
	if err := s.saveToken(token); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// EnsureAccessTokenValid returns a currently usable access token: the stored
// one when its expiry is unknown or comfortably ahead, a refreshed one
// otherwise. Concurrent callers share a single refresh.
func (s *Service) EnsureAccessTokenValid(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do("token", func() (any, error) {
		access, err := s.creds.Load(credentials.KeyAccessToken)
		if err != nil {
			if errors.Is(err, credentials.ErrNotFound) {
				return s.RefreshAccessToken(ctx)
			}
			return "", err
		}
		if expiryStr, err := s.creds.Load(credentials.KeyTokenExpiry); err == nil {
			if expiry, err := time.Parse(time.RFC3339, expiryStr); err == nil {
				if time.Until(expiry) < refreshLeeway {
					return s.RefreshAccessToken(ctx)
				}
			}
		}
		// Expiry unknown: hand out the stored token and let the call
		// site drive a refresh on an authentication failure.
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// RevokeToken invalidates the given access or refresh token. A rejection is
// logged, not fatal: the token may already be invalid.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	data := url.Values{}
	data.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Token revocation returned status %d. It may already be invalid.", resp.StatusCode)
	}
	return nil
}

func mapTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &RemoteRejectedError{
			StatusCode: retrieveErr.Response.StatusCode,
			Body:       string(retrieveErr.Body),
		}
	}
	return &TransportError{Err: err}
}
