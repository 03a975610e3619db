package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const installedCredentials = `{
  "installed": {
    "client_id": "id.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func TestRedirectURL(t *testing.T) {
	logger := zap.NewNop()
	cases := map[string]string{
		"urn:ietf:wg:oauth:2.0:oob":       "http://localhost:6789/oauth2callback",
		"http://localhost":                "http://localhost:6789",
		"http://127.0.0.1:8080/cb":        "http://127.0.0.1:6789/cb",
		"https://example.com/oauth2/back": "https://example.com/oauth2/back",
	}
	for in, want := range cases {
		if got := redirectURL(in, "6789", logger); got != want {
			t.Errorf("redirectURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetConfig(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(creds, []byte(installedCredentials), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := GetConfig(Options{CredentialsFile: creds, TokenFile: filepath.Join(dir, "token.json"), Port: "7000"}, []string{"scope"})
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.RedirectURL != "http://localhost:7000" {
		t.Errorf("Unexpected redirect %s", cfg.RedirectURL)
	}
	if cfg.ClientID != "id.apps.googleusercontent.com" {
		t.Errorf("Unexpected client id %s", cfg.ClientID)
	}
}

func TestTokenCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour).Truncate(time.Second)}

	if err := saveToken(path, tok); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	got, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("tokenFromFile failed: %v", err)
	}
	if got.RefreshToken != "r" || !got.Expiry.Equal(tok.Expiry) {
		t.Errorf("Unexpected token %+v", got)
	}

	removed, err := ResetToken(Options{CredentialsFile: "unused", TokenFile: path})
	if err != nil || removed != path {
		t.Fatalf("ResetToken = %q, %v", removed, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected token file to be removed")
	}
	if _, err := ResetToken(Options{CredentialsFile: "unused", TokenFile: path}); err != nil {
		t.Errorf("Expected removing a missing token to succeed, got %v", err)
	}
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestSavingTokenSourcePersistsRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	old := &oauth2.Token{AccessToken: "old", RefreshToken: "r"}
	fresh := &oauth2.Token{AccessToken: "new", RefreshToken: "r"}

	src := &savingTokenSource{base: staticSource{fresh}, path: path, last: old, logger: zap.NewNop()}
	if _, err := src.Token(); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	got, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("Expected refreshed token on disk: %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("Expected new access token, got %s", got.AccessToken)
	}
}
