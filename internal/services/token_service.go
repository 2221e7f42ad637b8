package services

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"conta-sync-service/internal/config"
	"conta-sync-service/internal/contaazul"
	"conta-sync-service/internal/models"
	"conta-sync-service/internal/repositories"

	"github.com/rs/zerolog"
)

// expirySkew treats a token as expired slightly before its real expiry.
const expirySkew = 5 * time.Minute

// TokenService manages the two OAuth credential slots of every tenant:
// expiry checks and refresh-token exchanges against the generation's token
// endpoint.
type TokenService struct {
	tokens     repositories.TokenRepository
	oauth      config.OAuthConfig
	httpClient *http.Client
	log        zerolog.Logger
	now        func() time.Time
}

func NewTokenService(tokens repositories.TokenRepository, oauth config.OAuthConfig, log zerolog.Logger) *TokenService {
	return &TokenService{
		tokens:     tokens,
		oauth:      oauth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "tokens").Logger(),
		now:        time.Now,
	}
}

// IsExpired reports whether the credential is expired or within the skew
// window. Credentials without a stored expiry are treated as expired.
func (s *TokenService) IsExpired(cred *models.TokenCredential) bool {
	if !cred.ExpiresAt.Valid {
		return true
	}
	return s.now().After(cred.ExpiresAt.Time.Add(-expirySkew))
}

// Current returns the stored credential without refreshing it.
func (s *TokenService) Current(tenantID, generation string) (*models.TokenCredential, error) {
	return s.tokens.GetToken(tenantID, generation)
}

// List returns every stored credential across tenants and generations.
func (s *TokenService) List() ([]*models.TokenCredential, error) {
	return s.tokens.ListTokens()
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges the stored refresh token for a new credential and
// persists it. When the response omits a refresh token the old one is kept.
func (s *TokenService) Refresh(tenantID, generation string) (*models.TokenCredential, error) {
	cred, err := s.tokens.GetToken(tenantID, generation)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token found for tenant %s (%s)", tenantID, generation)
	}

	client := s.oauth.Client(generation)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	if generation == models.GenerationV2 {
		form.Set("client_id", client.ClientID)
		form.Set("client_secret", client.ClientSecret)
	}

	req, err := http.NewRequest(http.MethodPost, client.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Authorization", basicAuth(client.ClientID, client.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := parsed.ErrorDescription
		if detail == "" {
			detail = string(body)
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, detail)
	}

	refreshToken := parsed.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}

	updated := &models.TokenCredential{
		TenantID:     tenantID,
		Generation:   generation,
		AccessToken:  parsed.AccessToken,
		RefreshToken: refreshToken,
	}
	if parsed.ExpiresIn > 0 {
		updated.ExpiresAt = sql.NullTime{Time: s.now().Add(time.Duration(parsed.ExpiresIn) * time.Second), Valid: true}
	}

	if err := s.tokens.UpsertToken(updated); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	s.log.Info().Str("tenant", tenantID).Str("generation", generation).Msg("Token refreshed")
	return updated, nil
}

// Source returns the bearer-token source for one tenant and generation,
// refreshing transparently when the stored credential is expired.
func (s *TokenService) Source(tenantID, generation string) contaazul.TokenSource {
	return &tokenSource{svc: s, tenantID: tenantID, generation: generation}
}

type tokenSource struct {
	svc        *TokenService
	tenantID   string
	generation string
}

func (ts *tokenSource) Token() (string, error) {
	cred, err := ts.svc.tokens.GetToken(ts.tenantID, ts.generation)
	if err != nil {
		return "", err
	}
	if ts.svc.IsExpired(cred) {
		cred, err = ts.svc.Refresh(ts.tenantID, ts.generation)
		if err != nil {
			return "", err
		}
	}
	return cred.AccessToken, nil
}

func (ts *tokenSource) Refresh() (string, error) {
	cred, err := ts.svc.Refresh(ts.tenantID, ts.generation)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func basicAuth(clientID, clientSecret string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	return "Basic " + encoded
}
