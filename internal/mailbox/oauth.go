package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	defaultCallbackAddr = "localhost:8085"
	authTimeout         = 5 * time.Minute
)

// OAuthConfig locates the desktop client credentials and the cached token.
type OAuthConfig struct {
	CredentialsFile string
	TokenFile       string
	CallbackAddr    string
	// Modify requests gmail.modify instead of gmail.readonly.
	Modify bool
}

func (c OAuthConfig) scopes() []string {
	if c.Modify {
		return []string{gmail.GmailModifyScope}
	}
	return []string{gmail.GmailReadonlyScope}
}

// LoadOAuthConfig reads a Google "installed application" credentials file.
func LoadOAuthConfig(cfg OAuthConfig) (*oauth2.Config, error) {
	data, err := os.ReadFile(cfg.CredentialsFile) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(data, cfg.scopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	addr := cfg.CallbackAddr
	if addr == "" {
		addr = defaultCallbackAddr
	}
	oauthConfig.RedirectURL = "http://" + addr + "/callback"
	return oauthConfig, nil
}

// AuthenticateInteractive runs the browser consent flow and stores the token.
func AuthenticateInteractive(ctx context.Context, cfg OAuthConfig) (*oauth2.Token, error) {
	oauthConfig, err := LoadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}
	addr := cfg.CallbackAddr
	if addr == "" {
		addr = defaultCallbackAddr
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- errors.New("no authorization code received")
			_, _ = fmt.Fprint(w, `<html><body><h1>Authentication Failed</h1><p>No authorization code received. Please try again.</p></body></html>`)
			return
		}
		codeChan <- code
		_, _ = fmt.Fprint(w, `<html><body><h1>Authentication Successful!</h1><p>You can close this window and return to the terminal.</p></body></html>`)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); !errors.Is(serveErr, http.ErrServerClosed) {
			errorChan <- fmt.Errorf("callback server failed: %w", serveErr)
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	slog.Info("Gmail authentication required")
	slog.Info("Please visit this URL to authenticate", "url", authURL)
	slog.Info("Waiting for authentication...")

	var authCode string
	select {
	case authCode = <-codeChan:
		slog.Info("Received authorization code")
	case err := <-errorChan:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		_ = server.Shutdown(ctx)
		return nil, errors.New("authentication timeout - no response received within 5 minutes")
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("Error shutting down callback server", "error", err)
	}

	token, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if cfg.TokenFile != "" {
		if err := SaveToken(cfg.TokenFile, token); err != nil {
			slog.Warn("Failed to save token to file", "error", err, "file", cfg.TokenFile)
		} else {
			slog.Info("Token saved successfully", "file", cfg.TokenFile)
		}
	}

	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

// SaveToken writes token with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// savingTokenSource persists refreshed tokens so the next run starts warm.
type savingTokenSource struct {
	base oauth2.TokenSource
	last *oauth2.Token
	path string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	if s.path != "" && (s.last == nil || token.AccessToken != s.last.AccessToken) {
		if err := SaveToken(s.path, token); err != nil {
			slog.Warn("Failed to save refreshed token", "error", err)
		}
	}
	s.last = token
	return token, nil
}

// TokenSource returns a refreshing token source from the cached token. When no
// token is cached and interactive is set, the consent flow runs first.
func TokenSource(ctx context.Context, cfg OAuthConfig, interactive bool) (oauth2.TokenSource, error) {
	oauthConfig, err := LoadOAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		if !interactive {
			return nil, fmt.Errorf("no Gmail token at %s (run `spice auth gmail`): %w", cfg.TokenFile, err)
		}
		slog.Info("No existing token found, starting OAuth2 flow")
		token, err = AuthenticateInteractive(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	return oauth2.ReuseTokenSource(token, &savingTokenSource{
		base: oauthConfig.TokenSource(ctx, token),
		last: token,
		path: cfg.TokenFile,
	}), nil
}

// ClientOptions builds Gmail client options from OAuth config.
func ClientOptions(ctx context.Context, cfg OAuthConfig) ([]option.ClientOption, error) {
	ts, err := TokenSource(ctx, cfg, false)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}
