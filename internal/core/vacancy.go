package core

import "time"

// Vacancy is the normalized company vacancy shape returned to the front end.
type Vacancy struct {
	Provider    Provider  `json:"provider"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Response is one candidate response (negotiation) to a vacancy.
type Response struct {
	ID        string    `json:"id"`
	VacancyID string    `json:"vacancy_id"`
	Resume    Ref       `json:"resume"`
	Unread    bool      `json:"unread"`
	CreatedAt time.Time `json:"created_at"`
}
