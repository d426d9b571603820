// Package hh is the HeadHunter-side provider client. It speaks the
// employer resume-search API and shares the credential rotation, retry,
// and response-cache machinery with the other providers.
package hh

import (
	"compress/gzip"
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
	"resume-aggregator/internal/respcache"
)

const (
	defaultAPIURL = "https://api.hh.ru"
	tokenURL      = "https://hh.ru/oauth/token"
	userAgent     = "resume-aggregator (hiring@resume-aggregator.local)"

	// Max value the resume search accepts for per_page.
	maxPerPage = 50

	// Consecutive short pages after which pagination assumes the upstream
	// ran out of results.
	shortPageStop = 3

	contentType     = "application/json"
	contentEncoding = "gzip, deflate, br"
)

type Config struct {
	Tokens       []string
	ClientID     string
	ClientSecret string
	RefreshToken string
	EmployerID   string
	MaxAttempts  int
	RetryDelay   time.Duration
}

type Client struct {
	logger     *zap.Logger
	creds      *provider.Credentials
	retry      *provider.RetryPolicy
	cache      *respcache.Cache
	employerID string

	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
}

func New(cfg *Config, cache *respcache.Cache, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String(logger.FieldProvider, string(core.ProviderHH)))

	c := &Client{
		logger: log,
		cache:  cache,
		APIURL: defaultAPIURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UserAgent:  userAgent,
		employerID: cfg.EmployerID,
	}

	c.creds = provider.NewCredentials(core.ProviderHH, cfg.Tokens, cfg.RefreshToken, c.refreshAccessToken(cfg), log)
	c.retry = provider.NewRetryPolicy(c.creds, cfg.MaxAttempts, cfg.RetryDelay, log)

	return c
}

func (c *Client) Name() core.Provider {
	return core.ProviderHH
}

// refreshAccessToken exchanges the refresh token at the OAuth endpoint. The
// upstream may rotate the refresh token in the same response.
func (c *Client) refreshAccessToken(cfg *Config) provider.RefreshFunc {
	return func(ctx context.Context, refreshToken string) (provider.TokenPair, error) {
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		form.Set("client_id", cfg.ClientID)
		form.Set("client_secret", cfg.ClientSecret)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return provider.TokenPair{}, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", c.UserAgent)

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return provider.TokenPair{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return provider.TokenPair{}, fmt.Errorf("token endpoint returned %s", resp.Status)
		}

		var token struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int    `json:"expires_in"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
			return provider.TokenPair{}, err
		}
		if token.AccessToken == "" {
			return provider.TokenPair{}, fmt.Errorf("token endpoint returned no access_token")
		}

		return provider.TokenPair{
			Access:  token.AccessToken,
			Refresh: token.RefreshToken,
			TTL:     time.Duration(token.ExpiresIn) * time.Second,
		}, nil
	}
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.creds.Current()))
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

// getJSON runs one GET against the API, consulting the short-TTL response
// cache first. The request is built inside the call so a rotated bearer is
// picked up on every attempt, and the verbatim payload is cached on success.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, target interface{}) error {
	signature := respcache.Signature(path, q)
	if payload, ok := c.cache.Get(ctx, signature); ok {
		if target == nil {
			return nil
		}
		return json.Unmarshal(payload, target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL+path, nil)
	if err != nil {
		return err
	}

	req = c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &provider.Error{
			Class:    provider.ClassTransient,
			Provider: core.ProviderHH,
			Endpoint: path,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &provider.Error{
			Class:    provider.ClassifyStatus(resp.StatusCode),
			Provider: core.ProviderHH,
			Endpoint: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("bad status: %s", resp.Status),
		}
	}

	c.cache.Put(ctx, signature, data)

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return &provider.Error{
			Class:    provider.ClassUpstreamShape,
			Provider: core.ProviderHH,
			Endpoint: path,
			Err:      err,
		}
	}

	return nil
}

// do runs one request without a body against the API and discards the
// response payload. Used by the write-side endpoints.
func (c *Client) do(ctx context.Context, method, path string, expect int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.APIURL+path, nil)
	if err != nil {
		return err
	}
	req = c.setHeaders(req)

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &provider.Error{
			Class:    provider.ClassTransient,
			Provider: core.ProviderHH,
			Endpoint: path,
			Err:      err,
		}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != expect && resp.StatusCode != http.StatusOK {
		return &provider.Error{
			Class:    provider.ClassifyStatus(resp.StatusCode),
			Provider: core.ProviderHH,
			Endpoint: path,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("bad status: %s", resp.Status),
		}
	}

	return nil
}

// pageResponse is the common paginated envelope of the list endpoints.
type pageResponse struct {
	Items   []map[string]interface{} `json:"items"`
	Found   int                      `json:"found"`
	Pages   int                      `json:"pages"`
	Page    int                      `json:"page"`
	PerPage int                      `json:"per_page"`
}

// checkResumeQuota looks up the current manager's resume-view quota and
// rotates the credential when it is spent. Quota lookup failures are logged
// and ignored so a broken limits endpoint never blocks a fetch.
func (c *Client) checkResumeQuota(ctx context.Context) {
	if c.employerID == "" {
		return
	}

	var me struct {
		Manager struct {
			ID string `json:"id"`
		} `json:"manager"`
	}
	if err := c.getJSON(ctx, "/me", nil, &me); err != nil || me.Manager.ID == "" {
		c.logger.Warn("could not resolve current manager", zap.Error(err))
		return
	}

	var limits struct {
		Left struct {
			ResumeView int `json:"resume_view"`
		} `json:"left"`
	}
	path := fmt.Sprintf("/employers/%s/managers/%s/limits/resume", c.employerID, me.Manager.ID)
	if err := c.getJSON(ctx, path, nil, &limits); err != nil {
		c.logger.Warn("could not read resume view limits", zap.Error(err))
		return
	}

	if limits.Left.ResumeView <= 0 {
		c.logger.Warn("resume view quota spent, rotating credential")
		c.creds.Rotate()
	}
}
