package avito

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/provider"
)

const searchPath = "/job/v1/resumes/"

// searchResponse is the paginated envelope of the resume search. The found
// total bounds pagination: there is no point requesting past it.
type searchResponse struct {
	Found   int             `json:"found"`
	Resumes []resumePayload `json:"resumes"`
}

// resumePayload covers both the search items and the v2 detail shape. The
// detail endpoint nests most attributes under params; salary arrives as a
// bare number.
type resumePayload struct {
	ID     json.Number `json:"id"`
	Title  string      `json:"title"`
	Salary interface{} `json:"salary"`
	URL    string      `json:"url"`
	Params struct {
		Age            int         `json:"age"`
		Address        string      `json:"address"`
		Experience     int         `json:"experience"`
		ExperienceList interface{} `json:"experience_list"`
	} `json:"params"`
}

func (c *Client) SearchResumes(ctx context.Context, filters *provider.SearchFilters) ([]core.Resume, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	perPage := filters.PerPage
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	q := url.Values{}
	q.Set("query", filters.Keywords)
	if len(filters.Regions) > 0 {
		q.Set("location", filters.Regions[0])
	}
	if filters.SalaryFrom > 0 {
		q.Set("salaryMin", strconv.Itoa(filters.SalaryFrom))
	}
	if len(filters.Experience) > 0 {
		q.Set("experience", filters.Experience[0])
	}
	if len(filters.Schedule) > 0 {
		q.Set("schedule", filters.Schedule[0])
	}

	var resumes []core.Resume
	page := 1
	found := -1

	for len(resumes) < filters.Total && (found < 0 || len(resumes) < found) {
		if page > 1 {
			if err := c.throttle(ctx); err != nil {
				return nil, err
			}
		}

		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(min(perPage, filters.Total-len(resumes))))

		var response searchResponse
		err := c.retry.Do(ctx, searchPath, func(ctx context.Context) error {
			response = searchResponse{}
			return c.call(ctx, "GET", searchPath, q, nil, &response)
		})
		if err != nil {
			return nil, fmt.Errorf("searching resumes on page %d: %w", page, err)
		}

		found = response.Found
		for i := range response.Resumes {
			resumes = append(resumes, response.Resumes[i].toResume())
		}

		c.logger.Debug("got search page",
			zap.Int("page", page),
			zap.Int("items", len(response.Resumes)),
			zap.Int("found", found),
			zap.Int("collected", len(resumes)),
		)

		if len(response.Resumes) == 0 {
			break
		}
		page++
	}

	if len(resumes) > filters.Total {
		resumes = resumes[:filters.Total]
	}

	return resumes, nil
}

// GetResume fetches the full v2 shape of one resume. An upstream 404 is an
// absent entity, not a failure.
func (c *Client) GetResume(ctx context.Context, id string) (*core.Resume, error) {
	path := fmt.Sprintf("/job/v2/resumes/%s/", id)

	var payload resumePayload
	err := c.retry.Do(ctx, path, func(ctx context.Context) error {
		payload = resumePayload{}
		return c.call(ctx, "GET", path, nil, nil, &payload)
	})
	if err != nil {
		if provider.IsNotFound(err) {
			c.logger.Warn("resume not found upstream", zap.String("id", id))
			return nil, nil
		}
		return nil, err
	}

	resume := payload.toResume()
	if resume.ID == "" {
		resume.ID = id
	}
	return &resume, nil
}

func (p *resumePayload) toResume() core.Resume {
	resume := core.Resume{
		Provider:              core.ProviderAvito,
		ID:                    p.ID.String(),
		Title:                 p.Title,
		Age:                   p.Params.Age,
		Location:              p.Params.Address,
		Salary:                normalizeSalary(p.Salary),
		Experience:            normalizeExperienceList(p.Params.ExperienceList),
		TotalExperienceMonths: p.Params.Experience * 12,
		Link:                  p.URL,
		ReceivedAt:            time.Now().UTC(),
	}

	if resume.Link != "" && !strings.HasPrefix(resume.Link, "http") {
		resume.Link = siteURL + resume.Link
	}

	return resume
}

// normalizeSalary folds the upstream's loose salary value (number, numeric
// string, or absent) into the shared shape. The currency is always RUR.
func normalizeSalary(v interface{}) *core.Salary {
	var amount int
	switch s := v.(type) {
	case float64:
		amount = int(s)
	case json.Number:
		if f, err := s.Float64(); err == nil {
			amount = int(f)
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			amount = int(f)
		}
	}

	if amount <= 0 {
		return nil
	}
	return &core.Salary{Amount: amount, Currency: "RUR"}
}

// normalizeExperienceList tolerates both plain strings and structured
// entries in experience_list; anything else degrades to an empty history.
func normalizeExperienceList(v interface{}) []core.ExperienceEntry {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	var entries []core.ExperienceEntry
	for _, raw := range list {
		switch item := raw.(type) {
		case string:
			if item != "" {
				entries = append(entries, core.ExperienceEntry{Description: item})
			}
		case map[string]interface{}:
			entry := core.ExperienceEntry{
				Company:     stringField(item, "company"),
				Position:    stringField(item, "position"),
				Description: stringField(item, "description"),
			}
			if entry != (core.ExperienceEntry{}) {
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
