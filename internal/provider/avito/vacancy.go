package avito

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
)

const (
	vacanciesPath = "/job/v1/vacancies/"
	applyIDsPath  = "/job/v1/applications/get_ids"
	applyByIDPath = "/job/v1/applications/get_by_ids"

	// Window for the application-id listing; the endpoint requires a lower
	// bound on the update time.
	applyWindow = 30 * 24 * time.Hour
)

type vacancyPayload struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Address     string      `json:"address"`
	URL         string      `json:"url"`
	PublishedAt string      `json:"published_at"`
}

type applyPayload struct {
	ID        json.Number `json:"id"`
	VacancyID json.Number `json:"vacancy_id"`
	ResumeID  json.Number `json:"resume_id"`
	IsViewed  bool        `json:"is_viewed"`
	CreatedAt string      `json:"created_at"`
}

// Vacancies lists the company's vacancies.
func (c *Client) Vacancies(ctx context.Context) ([]core.Vacancy, error) {
	var response struct {
		Items []vacancyPayload `json:"items"`
	}
	err := c.retry.Do(ctx, vacanciesPath, func(ctx context.Context) error {
		response.Items = nil
		return c.call(ctx, "GET", vacanciesPath, nil, nil, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("listing company vacancies: %w", err)
	}

	vacancies := make([]core.Vacancy, 0, len(response.Items))
	for _, p := range response.Items {
		link := p.URL
		if link != "" && link[0] == '/' {
			link = siteURL + link
		}
		published, _ := time.Parse(time.RFC3339, p.PublishedAt)
		vacancies = append(vacancies, core.Vacancy{
			Provider:    core.ProviderAvito,
			ID:          p.ID.String(),
			Name:        p.Title,
			Location:    p.Address,
			URL:         link,
			PublishedAt: published,
		})
	}

	return vacancies, nil
}

// VacancyResponses lists candidate responses for one vacancy. The upstream
// has no per-vacancy listing, so the recent application ids are fetched
// first, hydrated in one batch, and filtered down to the vacancy.
func (c *Client) VacancyResponses(ctx context.Context, vacancyID string) ([]core.Response, error) {
	q := url.Values{}
	q.Set("updatedAtFrom", time.Now().Add(-applyWindow).Format("2006-01-02"))

	var ids struct {
		Applies []applyPayload `json:"applies"`
	}
	err := c.retry.Do(ctx, applyIDsPath, func(ctx context.Context) error {
		ids.Applies = nil
		return c.call(ctx, "GET", applyIDsPath, q, nil, &ids)
	})
	if err != nil {
		return nil, fmt.Errorf("listing application ids: %w", err)
	}
	if len(ids.Applies) == 0 {
		return nil, nil
	}

	applyIDs := make([]string, 0, len(ids.Applies))
	for _, a := range ids.Applies {
		applyIDs = append(applyIDs, a.ID.String())
	}

	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	var details struct {
		Applies []applyPayload `json:"applies"`
	}
	payload := map[string]interface{}{"ids": applyIDs}
	err = c.retry.Do(ctx, applyByIDPath, func(ctx context.Context) error {
		details.Applies = nil
		return c.call(ctx, "POST", applyByIDPath, nil, payload, &details)
	})
	if err != nil {
		return nil, fmt.Errorf("hydrating applications: %w", err)
	}

	var responses []core.Response
	for _, a := range details.Applies {
		if a.VacancyID.String() != vacancyID {
			continue
		}
		if a.ResumeID.String() == "" {
			c.logger.Warn("application without a resume, skipping", zap.String("application_id", a.ID.String()))
			continue
		}
		created, _ := time.Parse(time.RFC3339, a.CreatedAt)
		responses = append(responses, core.Response{
			ID:        a.ID.String(),
			VacancyID: vacancyID,
			Resume:    core.Ref{Provider: core.ProviderAvito, ID: a.ResumeID.String()},
			Unread:    !a.IsViewed,
			CreatedAt: created,
		})
	}

	c.logger.Debug("filtered applications",
		zap.String("vacancy_id", vacancyID),
		zap.Int("fetched", len(details.Applies)),
		zap.Int("matched", len(responses)),
	)

	return responses, nil
}

// MarkResponsesRead flags the responses as seen in one batch call.
func (c *Client) MarkResponsesRead(ctx context.Context, vacancyID string, responseIDs []string) error {
	if len(responseIDs) == 0 {
		return nil
	}

	path := fmt.Sprintf("/job/v1/vacancies/%s/responses/read/", vacancyID)
	payload := map[string]interface{}{"response_ids": responseIDs}

	err := c.retry.Do(ctx, path, func(ctx context.Context) error {
		return c.call(ctx, "POST", path, nil, payload, nil)
	})
	if err != nil {
		return fmt.Errorf("marking responses read for vacancy %s: %w", vacancyID, err)
	}

	c.logger.Info("marked responses read",
		zap.String("vacancy_id", vacancyID),
		zap.Int("count", len(responseIDs)),
	)
	return nil
}
