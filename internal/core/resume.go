package core

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies one of the upstream job boards.
type Provider string

const (
	ProviderHH    Provider = "hh"
	ProviderAvito Provider = "avito"
)

// Valid reports whether the provider is one of the known upstreams.
func (p Provider) Valid() bool {
	return p == ProviderHH || p == ProviderAvito
}

// Ref is a provider-tagged resume identifier. Raw provider ids are not
// unique across providers, so every id crossing a provider boundary carries
// the provider tag.
type Ref struct {
	Provider Provider
	ID       string
}

// String renders the ref in the prefixed wire form stored in task id lists,
// e.g. "hh_123" or "avito_456".
func (r Ref) String() string {
	return fmt.Sprintf("%s_%s", r.Provider, r.ID)
}

// ParseRef parses the prefixed wire form. Ids without a known prefix default
// to the hh provider, matching historical task payloads.
func ParseRef(s string) Ref {
	switch {
	case strings.HasPrefix(s, string(ProviderAvito)+"_"):
		return Ref{Provider: ProviderAvito, ID: strings.TrimPrefix(s, string(ProviderAvito)+"_")}
	case strings.HasPrefix(s, string(ProviderHH)+"_"):
		return Ref{Provider: ProviderHH, ID: strings.TrimPrefix(s, string(ProviderHH)+"_")}
	default:
		return Ref{Provider: ProviderHH, ID: s}
	}
}

// Salary is the normalized salary shape. Amount of zero with an empty
// currency means the candidate did not state a salary.
type Salary struct {
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

// ExperienceEntry is one free-text work-history record.
type ExperienceEntry struct {
	Company     string `json:"company"`
	Position    string `json:"position"`
	Description string `json:"description"`
}

// Resume is the normalized candidate snapshot shared by all providers.
// Identity is (Provider, ID); either half alone is not unique.
type Resume struct {
	Provider   Provider          `json:"provider"`
	ID         string            `json:"id"`
	FirstName  string            `json:"first_name"`
	MiddleName string            `json:"middle_name"`
	LastName   string            `json:"last_name"`
	Title      string            `json:"title"`
	Age        int               `json:"age"`
	Location   string            `json:"location"`
	Salary     *Salary           `json:"salary,omitempty"`
	Experience []ExperienceEntry `json:"experience"`
	// TotalExperienceMonths is the provider-reported total, zero when unknown.
	TotalExperienceMonths int       `json:"total_experience_months"`
	Link                  string    `json:"link"`
	ReceivedAt            time.Time `json:"received_at"`
}

// Ref returns the provider-tagged identity of the resume.
func (r *Resume) Ref() Ref {
	return Ref{Provider: r.Provider, ID: r.ID}
}

// FullName joins the present name parts with spaces.
func (r *Resume) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.FirstName, r.MiddleName, r.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ExperienceText concatenates the work-history descriptions into the text
// blob handed to the match scorer. Entries without a description are skipped.
func (r *Resume) ExperienceText() string {
	var b strings.Builder
	for _, e := range r.Experience {
		desc := strings.TrimSpace(e.Description)
		if desc == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(desc)
	}
	return b.String()
}
