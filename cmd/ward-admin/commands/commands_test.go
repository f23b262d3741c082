// ABOUTME: Tests for the ward-admin command tree
// ABOUTME: Runs commands against a temp config and SQLite database

package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/store"
)

const testSecret = "admin-test-secret-that-is-32-bytes"

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// writeConfig creates a gateway config whose database lives in a temp dir.
func writeConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "ward.db")
	cfgPath = filepath.Join(dir, "gateway.yaml")
	content := fmt.Sprintf(`server:
  http_addr: "localhost:8080"
database:
  path: %q
auth:
  signed:
    issuer: "https://ward.example"
    audience: "ward"
    hmac_secret: %q
  introspection:
    url: "https://oauth2.googleapis.com/tokeninfo"
    style: "tokeninfo"
    client_id: "client-123"
`, dbPath, testSecret)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))
	return cfgPath, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAccountCreateListLink(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := run(t, "--config", cfgPath, "account", "create", "--id", "acct-1", "--email", "ada@example.com", "--name", "Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "Created account acct-1 (ada@example.com)")

	_, err = run(t, "--config", cfgPath, "account", "create", "--name", "No Email")
	assert.ErrorContains(t, err, "--email is required")

	out, err = run(t, "--config", cfgPath, "account", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "acct-1")
	assert.Contains(t, out, "ada@example.com")

	out, err = run(t, "--config", cfgPath, "account", "link", "--account", "acct-1", "--subject", "10769150350006150715113082367")
	require.NoError(t, err)
	assert.Contains(t, out, "Linked google.com/10769150350006150715113082367 to acct-1")

	_, err = run(t, "--config", cfgPath, "account", "link", "--account", "missing", "--subject", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	s, err := store.Open(store.DriverModernc, dbPath)
	require.NoError(t, err)
	defer s.Close()
	account, err := s.FindByExternalID(context.Background(), "google.com", "10769150350006150715113082367")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", account.ID)
}

func TestTokenMint(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := run(t, "--config", cfgPath, "account", "create", "--id", "acct-1", "--email", "ada@example.com", "--name", "Ada")
	require.NoError(t, err)

	tokenFile := filepath.Join(t.TempDir(), "token")
	out, err := run(t, "--config", cfgPath, "token", "mint", "--account", "acct-1", "--ttl", "1h", "--save", tokenFile)
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	saved, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, token, string(saved))

	v := auth.NewSignedTokenVerifier(auth.NewStaticKeySet([]byte(testSecret)), "https://ward.example", "ward")
	outcome := v.Verify(context.Background(), token)
	require.True(t, outcome.OK(), "minted token must verify: %v", outcome.Cause)
	assert.Equal(t, "acct-1", outcome.Identity.UserID)
	assert.Equal(t, "ada@example.com", outcome.Identity.Email)
	assert.Equal(t, "Ada", outcome.Identity.DisplayName)

	_, err = run(t, "--config", cfgPath, "token", "mint", "--account", "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid token"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"acct-1","email":"ada@example.com","displayName":"Ada","provider":"signed"}`))
	}))
	defer srv.Close()

	out, err := run(t, "me", "--url", srv.URL, "--token", "good")
	require.NoError(t, err)
	assert.Contains(t, out, "User ID:   acct-1")
	assert.Contains(t, out, "Verified:  signed")
	assert.Contains(t, out, "Account:   none")

	_, err = run(t, "me", "--url", srv.URL, "--token", "bad")
	assert.ErrorContains(t, err, "gateway returned 401")
}

func TestMe_DefaultsToListenerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"acct-2","email":"bo@example.com","provider":"signed"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gateway.yaml")
	content := fmt.Sprintf(`server:
  http_addr: %q
database:
  path: %q
auth:
  signed:
    issuer: "https://ward.example"
    hmac_secret: %q
`, strings.TrimPrefix(srv.URL, "http://"), filepath.Join(dir, "ward.db"), testSecret)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

	out, err := run(t, "--config", cfgPath, "me", "--token", "good")
	require.NoError(t, err)
	assert.Contains(t, out, "User ID:   acct-2")
}
