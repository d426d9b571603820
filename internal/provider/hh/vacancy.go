package hh

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/provider"
)

const (
	vacanciesPath    = "/vacancies"
	negotiationsPath = "/negotiations/response"
	readPathPrefix   = "/negotiations/read"
)

type vacancyPayload struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Area struct {
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
}

type negotiationPayload struct {
	ID         string `json:"id,omitempty"`
	HasUpdates bool   `json:"has_updates,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	Resume     struct {
		ID string `json:"id,omitempty"`
	} `json:"resume,omitempty"`
	Vacancy struct {
		ID string `json:"id,omitempty"`
	} `json:"vacancy,omitempty"`
}

// Vacancies lists the configured employer's vacancies, paginating until the
// upstream returns a short page.
func (c *Client) Vacancies(ctx context.Context) ([]core.Vacancy, error) {
	if c.employerID == "" {
		return nil, provider.Validationf("employer id is not configured")
	}

	q := url.Values{}
	q.Set("employer_id", c.employerID)

	items, err := c.getAllPages(ctx, vacanciesPath, q)
	if err != nil {
		return nil, fmt.Errorf("listing employer vacancies: %w", err)
	}

	var payloads []*vacancyPayload
	if err := decodeItems(items, &payloads, vacanciesPath); err != nil {
		return nil, err
	}

	vacancies := make([]core.Vacancy, 0, len(payloads))
	for _, p := range payloads {
		vacancies = append(vacancies, core.Vacancy{
			Provider:    core.ProviderHH,
			ID:          p.ID,
			Name:        p.Name,
			Location:    p.Area.Name,
			URL:         p.AlternateURL,
			PublishedAt: parseUpstreamTime(p.PublishedAt),
		})
	}

	return vacancies, nil
}

// VacancyResponses lists candidate responses for one vacancy. A response
// with pending upstream updates is reported unread.
func (c *Client) VacancyResponses(ctx context.Context, vacancyID string) ([]core.Response, error) {
	q := url.Values{}
	q.Set("vacancy_id", vacancyID)

	items, err := c.getAllPages(ctx, negotiationsPath, q)
	if err != nil {
		return nil, fmt.Errorf("listing responses for vacancy %s: %w", vacancyID, err)
	}

	var payloads []*negotiationPayload
	if err := decodeItems(items, &payloads, negotiationsPath); err != nil {
		return nil, err
	}

	responses := make([]core.Response, 0, len(payloads))
	for _, p := range payloads {
		if p.Resume.ID == "" {
			c.logger.Warn("response without a resume, skipping", zap.String("response_id", p.ID))
			continue
		}
		responses = append(responses, core.Response{
			ID:        p.ID,
			VacancyID: vacancyID,
			Resume:    core.Ref{Provider: core.ProviderHH, ID: p.Resume.ID},
			Unread:    p.HasUpdates,
			CreatedAt: parseUpstreamTime(p.CreatedAt),
		})
	}

	return responses, nil
}

// MarkResponsesRead flags each response as seen. The first upstream failure
// aborts the batch.
func (c *Client) MarkResponsesRead(ctx context.Context, vacancyID string, responseIDs []string) error {
	for _, id := range responseIDs {
		path := fmt.Sprintf("%s/%s", readPathPrefix, id)
		err := c.retry.Do(ctx, path, func(ctx context.Context) error {
			return c.do(ctx, "PUT", path, 204)
		})
		if err != nil {
			return fmt.Errorf("marking response %s read: %w", id, err)
		}
	}

	c.logger.Info("marked responses read",
		zap.String("vacancy_id", vacancyID),
		zap.Int("count", len(responseIDs)),
	)
	return nil
}

// getAllPages sweeps a paginated list endpoint until a short page signals
// the end, running each page fetch under the retry policy.
func (c *Client) getAllPages(ctx context.Context, path string, q url.Values) ([]map[string]interface{}, error) {
	var items []map[string]interface{}
	page := 0

	for {
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(maxPerPage))

		var response pageResponse
		err := c.retry.Do(ctx, path, func(ctx context.Context) error {
			response = pageResponse{}
			return c.getJSON(ctx, path, q, &response)
		})
		if err != nil {
			return nil, err
		}

		items = append(items, response.Items...)
		c.logger.Debug("got list page",
			zap.String(logger.FieldEndpoint, path),
			zap.Int("page", page),
			zap.Int("items", len(response.Items)),
		)

		if len(response.Items) < maxPerPage {
			break
		}
		page++
	}

	return items, nil
}

func decodeItems(items []map[string]interface{}, target interface{}, endpoint string) error {
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   target,
		TagName:  "json",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(items); err != nil {
		return &provider.Error{
			Class:    provider.ClassUpstreamShape,
			Provider: core.ProviderHH,
			Endpoint: endpoint,
			Err:      err,
		}
	}
	return nil
}

func parseUpstreamTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
