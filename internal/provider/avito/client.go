// Package avito is the Avito-side provider client. Its bearer comes from a
// client-credentials exchange and is minted lazily through the shared
// credential machinery; there are no rotation slots.
package avito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/provider"
	"resume-aggregator/internal/utils"
)

const (
	defaultAPIURL = "https://api.avito.ru"
	tokenPath     = "/token"
	siteURL       = "https://avito.ru"

	// Max value the resume search accepts for perPage.
	maxPerPage = 100

	// The upstream throttles aggressively, so consecutive requests are
	// spaced out.
	defaultPause = 1100 * time.Millisecond
)

type Config struct {
	ClientID     string
	ClientSecret string
	MaxAttempts  int
	RetryDelay   time.Duration
	Pause        time.Duration
}

type Client struct {
	logger *zap.Logger
	creds  *provider.Credentials
	retry  *provider.RetryPolicy
	pause  time.Duration

	HTTPClient *http.Client
	APIURL     string
}

func New(cfg *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String(logger.FieldProvider, string(core.ProviderAvito)))

	pause := cfg.Pause
	if pause == 0 {
		pause = defaultPause
	}

	c := &Client{
		logger: log,
		pause:  pause,
		APIURL: defaultAPIURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.creds = provider.NewCredentials(core.ProviderAvito, nil, "", c.mintAccessToken(cfg), log)
	c.retry = provider.NewRetryPolicy(c.creds, cfg.MaxAttempts, cfg.RetryDelay, log)

	return c
}

func (c *Client) Name() core.Provider {
	return core.ProviderAvito
}

// mintAccessToken runs the client-credentials exchange. The refresh token
// argument is unused in this flow.
func (c *Client) mintAccessToken(cfg *Config) provider.RefreshFunc {
	return func(ctx context.Context, _ string) (provider.TokenPair, error) {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", cfg.ClientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+tokenPath, strings.NewReader(form.Encode()))
		if err != nil {
			return provider.TokenPair{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return provider.TokenPair{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return provider.TokenPair{}, fmt.Errorf("token endpoint returned %s: %s", resp.Status, utils.TruncateForLog(string(body), 200))
		}

		var token struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
			return provider.TokenPair{}, err
		}
		if token.AccessToken == "" {
			return provider.TokenPair{}, fmt.Errorf("token endpoint returned no access_token")
		}

		ttl := time.Duration(token.ExpiresIn) * time.Second
		if ttl <= 0 {
			ttl = time.Hour
		}
		return provider.TokenPair{Access: token.AccessToken, TTL: ttl}, nil
	}
}

// call runs one request against the API. A JSON body is attached for
// non-GET methods when payload is not nil.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, payload, target interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.creds.Current()))
	req.Header.Set("Content-Type", "application/json")
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &provider.Error{
			Class:    provider.ClassTransient,
			Provider: core.ProviderAvito,
			Endpoint: path,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &provider.Error{
			Class:    provider.ClassifyStatus(resp.StatusCode),
			Provider: core.ProviderAvito,
			Endpoint: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("bad status: %s", resp.Status),
		}
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &provider.Error{
			Class:    provider.ClassUpstreamShape,
			Provider: core.ProviderAvito,
			Endpoint: path,
			Err:      err,
		}
	}

	return nil
}

// throttle spaces out consecutive upstream requests.
func (c *Client) throttle(ctx context.Context) error {
	return utils.WaitFor(ctx, c.pause)
}
