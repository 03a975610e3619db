package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const (
	// DefaultCredentialsFile is the OAuth client downloaded from the Google
	// Cloud console, relative to the config directory.
	DefaultCredentialsFile = "credentials.json"
	// DefaultTokenFile caches the access and refresh token.
	DefaultTokenFile = "token.json"
	// DefaultPort is where the local server waits for the OAuth redirect.
	DefaultPort = "6789"

	xdgAppName = "tasklink"
)

// Options locates the OAuth client and token cache.
type Options struct {
	CredentialsFile string
	TokenFile       string
	Port            string
	Logger          *zap.Logger
}

func (o Options) withDefaults() (Options, error) {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Port == "" {
		o.Port = DefaultPort
	}
	if o.CredentialsFile == "" || o.TokenFile == "" {
		base, err := GetXdgHome()
		if err != nil {
			return o, err
		}
		if o.CredentialsFile == "" {
			o.CredentialsFile = filepath.Join(base, DefaultCredentialsFile)
		}
		if o.TokenFile == "" {
			o.TokenFile = filepath.Join(base, DefaultTokenFile)
		}
	}
	return o, nil
}

// GetConfig reads the OAuth client and points its redirect at the local
// callback server.
func GetConfig(opts Options, scopes []string) (*oauth2.Config, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", opts.CredentialsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL(config.RedirectURL, opts.Port, opts.Logger)
	return config, nil
}

// redirectURL forces localhost and out-of-band redirects onto port.
func redirectURL(configured, port string, logger *zap.Logger) string {
	if configured == "urn:ietf:wg:oauth:2.0:oob" || configured == "" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", port)
	}
	parsed, err := url.Parse(configured)
	if err != nil {
		logger.Warn("Could not parse redirect URL, using it as is", zap.String("redirect_url", configured), zap.Error(err))
		return configured
	}
	if parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" {
		logger.Warn("Redirect URL is not a localhost callback", zap.String("redirect_url", configured))
		return configured
	}
	if parsed.Port() != "" && parsed.Port() != port {
		logger.Warn("Overriding redirect port", zap.String("configured", parsed.Port()), zap.String("port", port))
	}
	parsed.Host = net.JoinHostPort(parsed.Hostname(), port)
	return parsed.String()
}

// GetClient returns an HTTP client carrying a valid token. A missing token
// starts the browser flow. Refreshed tokens are written back to the cache.
func GetClient(ctx context.Context, opts Options, scopes []string) (*http.Client, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	config, err := GetConfig(opts, scopes)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(opts.TokenFile)
	if err != nil {
		opts.Logger.Info("No cached token, starting web authorization", zap.String("token_file", opts.TokenFile))
		tok, err = getTokenFromWeb(ctx, config, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to get token from web: %w", err)
		}
		if err := saveToken(opts.TokenFile, tok); err != nil {
			return nil, err
		}
	}

	src := &savingTokenSource{
		base:   config.TokenSource(ctx, tok),
		path:   opts.TokenFile,
		last:   tok,
		logger: opts.Logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingTokenSource persists a token whenever the underlying source hands
// out a different one.
type savingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	mu     sync.Mutex
	last   *oauth2.Token
	logger *zap.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Warn("Could not cache refreshed token", zap.Error(err))
		} else {
			s.logger.Debug("Cached refreshed token", zap.String("token_file", s.path))
		}
		s.last = tok
	}
	return tok, nil
}

func getTokenFromWeb(ctx context.Context, config *oauth2.Config, opts Options) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", opts.Port, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background()) //nolint:errcheck

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Please open the following URL in your browser to authorize tasklink:\n%s\n", authURL)
	opts.Logger.Info("Waiting for authorization code", zap.String("redirect_url", config.RedirectURL))

	select {
	case code := <-codeCh:
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exchangeCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// ResetToken removes the cached token so the next GetClient asks again.
func ResetToken(opts Options) (string, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return "", err
	}
	if err := os.Remove(opts.TokenFile); err != nil && !os.IsNotExist(err) {
		return opts.TokenFile, fmt.Errorf("could not delete token file '%s': %w. Please delete it manually", opts.TokenFile, err)
	}
	return opts.TokenFile, nil
}

// GetTasksService creates an authenticated Google Tasks service.
func GetTasksService(ctx context.Context, opts Options) (*tasks.Service, error) {
	client, err := GetClient(ctx, opts, []string{tasks.TasksScope})
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticated client for Tasks API: %w", err)
	}
	srv, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Google Tasks service: %w", err)
	}
	return srv, nil
}

func GetXdgHome() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}
