// Package provider defines the contract both upstream job-board clients
// implement, along with the shared credential, retry, and error machinery
// that wraps every upstream call.
package provider

import (
	"context"
	"strings"

	"resume-aggregator/internal/core"
)

// SearchFilters is the generic, provider-agnostic query description. Each
// client translates it into its own request parameters; filters a provider
// does not support are silently omitted, never an error.
type SearchFilters struct {
	Keywords string   `mapstructure:"keywords"`
	Regions  []string `mapstructure:"regions"`

	SalaryFrom int    `mapstructure:"salary_from"`
	SalaryTo   int    `mapstructure:"salary_to"`
	Currency   string `mapstructure:"currency"`

	Experience []string `mapstructure:"experience"`
	Schedule   []string `mapstructure:"schedule"`
	Employment []string `mapstructure:"employment"`

	PeriodDays int    `mapstructure:"period"`
	DateFrom   string `mapstructure:"date_from"`
	DateTo     string `mapstructure:"date_to"`

	Labels     []string `mapstructure:"labels"`
	OrderBy    string   `mapstructure:"order_by"`
	Relocation string   `mapstructure:"relocation"`

	Total   int `mapstructure:"total"`
	PerPage int `mapstructure:"per_page"`

	// Extra passes provider-specific parameters through opaquely.
	Extra map[string]string `mapstructure:"extra"`
}

// Validate rejects malformed input before any upstream call is made.
func (f *SearchFilters) Validate() error {
	if f == nil {
		return Validationf("search filters are required")
	}
	if strings.TrimSpace(f.Keywords) == "" {
		return Validationf("keywords are required")
	}
	if f.Total <= 0 {
		return Validationf("total must be positive, got %d", f.Total)
	}
	if f.PerPage < 0 {
		return Validationf("per_page must not be negative, got %d", f.PerPage)
	}
	return nil
}

// Searcher is the resume-acquisition surface of one provider.
type Searcher interface {
	Name() core.Provider

	// SearchResumes paginates the provider's resume search until its stop
	// condition fires, returning normalized items in page order.
	SearchResumes(ctx context.Context, filters *SearchFilters) ([]core.Resume, error)

	// GetResume fetches one full resume. An absent entity yields (nil, nil),
	// not an error.
	GetResume(ctx context.Context, id string) (*core.Resume, error)
}

// VacancySource is the company-vacancy surface of one provider.
type VacancySource interface {
	// Vacancies lists the configured company's vacancies.
	Vacancies(ctx context.Context) ([]core.Vacancy, error)

	// VacancyResponses lists candidate responses for one vacancy.
	VacancyResponses(ctx context.Context, vacancyID string) ([]core.Response, error)

	// MarkResponsesRead flags the given responses as seen upstream.
	MarkResponsesRead(ctx context.Context, vacancyID string, responseIDs []string) error
}

// Client is the full per-provider contract consumed by the service facade.
type Client interface {
	Searcher
	VacancySource
}
