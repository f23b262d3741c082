// ABOUTME: Opaque access token strategy backed by an authorization server's introspection endpoint
// ABOUTME: Enforces the aud/azp client id check and links the subject to a local account

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/2389/ward-gateway/internal/store"
)

// Introspection wire styles.
const (
	StyleRFC7662   = "rfc7662"   // POST form, {"active": true, ...}
	StyleTokenInfo = "tokeninfo" // GET ?access_token=, Google style
)

const introspectMaxBody = 64 << 10

// Directory maps verified external identities to local accounts.
type Directory interface {
	FindByExternalID(ctx context.Context, provider, externalID string) (*store.Account, error)
	FindByEmail(ctx context.Context, email string) (*store.Account, error)
}

// IntrospectionConfig configures an IntrospectionVerifier.
type IntrospectionConfig struct {
	URL          string
	Style        string
	ClientID     string
	ClientSecret string
	// Provider names the identity provider in account links, e.g. "google.com".
	Provider string
	// EmailFallback links by email when no external id link exists. Only safe
	// when the provider guarantees verified, unique email ownership.
	EmailFallback bool
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// IntrospectionVerifier treats the bearer token as opaque and asks the
// authorization server who it belongs to.
type IntrospectionVerifier struct {
	cfg    IntrospectionConfig
	client *http.Client
	dir    Directory
}

// NewIntrospectionVerifier creates a verifier that links subjects through dir.
func NewIntrospectionVerifier(cfg IntrospectionConfig, dir Directory) *IntrospectionVerifier {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.Style == "" {
		cfg.Style = StyleRFC7662
	}
	return &IntrospectionVerifier{cfg: cfg, client: client, dir: dir}
}

// Name implements Verifier.
func (v *IntrospectionVerifier) Name() string {
	return "introspection"
}

// audience accepts both the string and the array form of "aud".
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("aud: %w", err)
	}
	*a = many
	return nil
}

type introspectionResponse struct {
	Active   *bool    `json:"active"`
	Subject  string   `json:"sub"`
	Audience audience `json:"aud"`
	AZP      string   `json:"azp"`
	ClientID string   `json:"client_id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
}

// Verify introspects the token, checks it was issued for this client and
// links it to an account.
func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) Outcome {
	info, err := v.introspect(ctx, token)
	if err != nil {
		return Failure(ErrInvalidCredential, err)
	}

	if v.cfg.Style == StyleRFC7662 && (info.Active == nil || !*info.Active) {
		return Failure(ErrInvalidCredential, errors.New("token inactive"))
	}

	azp := info.AZP
	if azp == "" {
		azp = info.ClientID
	}
	if !slices.Contains(info.Audience, v.cfg.ClientID) && azp != v.cfg.ClientID {
		return Failure(ErrAudienceMismatch,
			fmt.Errorf("aud=%v azp=%q, want %q", []string(info.Audience), azp, v.cfg.ClientID))
	}

	if info.Subject == "" {
		return Failure(ErrInvalidCredential, ErrMissingSubject)
	}

	account, err := v.link(ctx, info.Subject, info.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Failure(ErrIdentityNotLinked, fmt.Errorf("%s subject %q", v.cfg.Provider, info.Subject))
		}
		return Failure(ErrInvalidCredential, err)
	}

	name := account.DisplayName
	if name == "" {
		name = info.Name
	}
	return Success(Identity{
		UserID:      account.ID,
		Email:       account.Email,
		DisplayName: name,
		Provider:    v.Name(),
	})
}

// link finds the account for a provider subject, falling back to email.
// Accounts are never created here.
func (v *IntrospectionVerifier) link(ctx context.Context, subject, email string) (*store.Account, error) {
	account, err := v.dir.FindByExternalID(ctx, v.cfg.Provider, subject)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("external id lookup: %w", err)
	}
	if !v.cfg.EmailFallback || email == "" {
		return nil, store.ErrNotFound
	}

	account, err = v.dir.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("email lookup: %w", err)
	}
	return account, nil
}

func (v *IntrospectionVerifier) introspect(ctx context.Context, token string) (*introspectionResponse, error) {
	req, err := v.buildRequest(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, introspectMaxBody))
		return nil, fmt.Errorf("introspection status %d", resp.StatusCode)
	}

	var info introspectionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, introspectMaxBody)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding introspection response: %w", err)
	}
	return &info, nil
}

func (v *IntrospectionVerifier) buildRequest(ctx context.Context, token string) (*http.Request, error) {
	switch v.cfg.Style {
	case StyleTokenInfo:
		u, err := url.Parse(v.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing introspection url: %w", err)
		}
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)

	case StyleRFC7662:
		form := url.Values{"token": {token}, "token_type_hint": {"access_token"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		if v.cfg.ClientSecret != "" {
			req.SetBasicAuth(url.QueryEscape(v.cfg.ClientID), url.QueryEscape(v.cfg.ClientSecret))
		}
		return req, nil

	default:
		return nil, fmt.Errorf("unknown introspection style %q", v.cfg.Style)
	}
}
