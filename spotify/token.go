package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// ErrInvalidCredentials is returned when either token endpoint rejects the
// client with a 400-class response. The resolver instance is unusable until
// reconfigured; the error is never retried.
var ErrInvalidCredentials = errors.New("invalid spotify client credentials")

const (
	defaultTokenURL     = "https://accounts.spotify.com/api/token"
	defaultAnonymousURL = "https://open.spotify.com/get_access_token?reason=transport&productType=embed"

	anonymousUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.99 Safari/537.36"
)

// tokenSource implements oauth2.TokenSource with the catalog's credential
// lifecycle: client-credentials grant when a client is configured, the
// anonymous embed endpoint otherwise. The token and its expiry are cached;
// the mutex serializes refreshes so concurrent searches never trigger a
// refresh storm.
type tokenSource struct {
	creds        *clientcredentials.Config // nil when running anonymously
	httpClient   *http.Client
	limiter      *rate.Limiter
	anonymousURL string

	mu    sync.Mutex
	token *oauth2.Token
}

func newTokenSource(cfg Config, limiter *rate.Limiter) *tokenSource {
	s := &tokenSource{
		httpClient:   http.DefaultClient,
		limiter:      limiter,
		anonymousURL: defaultAnonymousURL,
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		s.creds = &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     defaultTokenURL,
		}
	}
	return s
}

// Token returns the cached token, refreshing it first when now >= expiry.
func (s *tokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid() {
		return s.token, nil
	}

	ctx := context.Background()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.token = tok
	zlog.Debug().Time("expiry", tok.Expiry).Msg("spotify: token renewed")
	return tok, nil
}

func (s *tokenSource) fetch(ctx context.Context) (*oauth2.Token, error) {
	if s.creds == nil {
		return s.fetchAnonymous(ctx)
	}

	tok, err := s.creds.Token(ctx)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500 {
			return nil, errors.Wrap(ErrInvalidCredentials, err.Error())
		}
		return nil, errors.Wrap(err, "failed to fetch client-credentials token")
	}
	return tok, nil
}

// anonymousTokenResponse is the embed token endpoint's payload.
type anonymousTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAtMs int64  `json:"accessTokenExpirationTimestampMs"`
}

func (s *tokenSource) fetchAnonymous(ctx context.Context) (*oauth2.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.anonymousURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build anonymous token request")
	}
	req.Header.Set("User-Agent", anonymousUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "anonymous token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, errors.Wrapf(ErrInvalidCredentials, "anonymous token endpoint returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("anonymous token endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read anonymous token response")
	}

	var tr anonymousTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.Wrap(err, "failed to decode anonymous token response")
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.UnixMilli(tr.ExpiresAtMs),
	}, nil
}
