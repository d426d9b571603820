package hh

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/provider"
)

// resumePayload is the upstream resume shape, shared by the search items and
// the detail endpoint. Fields absent on search items stay zero.
type resumePayload struct {
	ID         string `json:"id,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Title      string `json:"title,omitempty"`
	Age        int    `json:"age,omitempty"`
	Area       struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"area,omitempty"`
	Salary *struct {
		Amount   int    `json:"amount,omitempty"`
		Currency string `json:"currency,omitempty"`
	} `json:"salary,omitempty"`
	Experience []struct {
		Company     string `json:"company,omitempty"`
		Position    string `json:"position,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"experience,omitempty"`
	TotalExperience *struct {
		Months int `json:"months,omitempty"`
	} `json:"total_experience,omitempty"`
	Link         string `json:"link,omitempty"`
	AlternateURL string `json:"alternate_url,omitempty"`
}

func (r *resumePayload) toResume() core.Resume {
	resume := core.Resume{
		Provider:   core.ProviderHH,
		ID:         r.ID,
		FirstName:  r.FirstName,
		MiddleName: r.MiddleName,
		LastName:   r.LastName,
		Title:      r.Title,
		Age:        r.Age,
		Location:   r.Area.Name,
		Link:       r.Link,
		ReceivedAt: time.Now().UTC(),
	}

	if resume.Link == "" {
		resume.Link = r.AlternateURL
	}
	if r.Salary != nil {
		resume.Salary = &core.Salary{Amount: r.Salary.Amount, Currency: r.Salary.Currency}
	}
	if r.TotalExperience != nil {
		resume.TotalExperienceMonths = r.TotalExperience.Months
	}
	for _, e := range r.Experience {
		resume.Experience = append(resume.Experience, core.ExperienceEntry{
			Company:     e.Company,
			Position:    e.Position,
			Description: e.Description,
		})
	}

	return resume
}

// GetResume fetches one full resume. An upstream 404 is an absent entity,
// not a failure.
func (c *Client) GetResume(ctx context.Context, id string) (*core.Resume, error) {
	c.checkResumeQuota(ctx)

	path := fmt.Sprintf("/resumes/%s", id)

	var payload resumePayload
	err := c.retry.Do(ctx, path, func(ctx context.Context) error {
		payload = resumePayload{}
		return c.getJSON(ctx, path, nil, &payload)
	})
	if err != nil {
		if provider.IsNotFound(err) {
			c.logger.Warn("resume not found upstream", zap.String("id", id))
			return nil, nil
		}
		return nil, err
	}

	resume := payload.toResume()
	return &resume, nil
}
