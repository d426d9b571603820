package avito

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/provider"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "avito-tok",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(&Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		RetryDelay:   time.Millisecond,
		Pause:        time.Nanosecond,
	}, zap.NewNop())
	client.APIURL = server.URL

	return client
}

func writeResumes(w http.ResponseWriter, count, found int) {
	resumes := make([]map[string]interface{}, count)
	for i := range resumes {
		resumes[i] = map[string]interface{}{
			"id":     100 + i,
			"title":  "Cook",
			"salary": 45000,
			"url":    fmt.Sprintf("/resume/%d", 100+i),
		}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"found":   found,
		"resumes": resumes,
	})
}

func TestSearchMintsTokenLazily(t *testing.T) {
	var auth string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeResumes(w, 1, 1)
	})

	resumes, err := client.SearchResumes(context.Background(), &provider.SearchFilters{
		Keywords: "cook",
		Total:    1,
	})
	if err != nil {
		t.Fatalf("SearchResumes: %v", err)
	}
	if len(resumes) != 1 {
		t.Fatalf("got %d resumes, want 1", len(resumes))
	}
	if auth != "Bearer avito-tok" {
		t.Fatalf("authorization = %q, want the minted bearer", auth)
	}
}

func TestSearchStopsAtReportedFound(t *testing.T) {
	var requests int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		writeResumes(w, 5, 5)
	})

	resumes, err := client.SearchResumes(context.Background(), &provider.SearchFilters{
		Keywords: "cook",
		Total:    10,
	})
	if err != nil {
		t.Fatalf("SearchResumes: %v", err)
	}
	if len(resumes) != 5 {
		t.Fatalf("got %d resumes, want the 5 the upstream reports", len(resumes))
	}
	if requests != 1 {
		t.Fatalf("made %d requests, want 1", requests)
	}
}

func TestSearchTruncatesToTotal(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResumes(w, 10, 100)
	})

	resumes, err := client.SearchResumes(context.Background(), &provider.SearchFilters{
		Keywords: "cook",
		Total:    3,
	})
	if err != nil {
		t.Fatalf("SearchResumes: %v", err)
	}
	if len(resumes) != 3 {
		t.Fatalf("got %d resumes, want 3", len(resumes))
	}
}

func TestGetResumeNormalizes(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job/v2/resumes/555/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     555,
			"title":  "Line cook",
			"salary": "50000",
			"url":    "/rezume/555",
			"params": map[string]interface{}{
				"age":             27,
				"address":         "Казань",
				"experience":      3,
				"experience_list": []interface{}{"Worked the grill", "Prep station"},
			},
		})
	})

	resume, err := client.GetResume(context.Background(), "555")
	if err != nil {
		t.Fatalf("GetResume: %v", err)
	}
	if resume == nil {
		t.Fatal("got nil resume")
	}

	if got := resume.Ref().String(); got != "avito_555" {
		t.Fatalf("ref = %q, want avito_555", got)
	}
	if resume.Salary == nil || resume.Salary.Amount != 50000 || resume.Salary.Currency != "RUR" {
		t.Fatalf("salary = %+v, want 50000 RUR", resume.Salary)
	}
	if resume.TotalExperienceMonths != 36 {
		t.Fatalf("total experience = %d months, want 36", resume.TotalExperienceMonths)
	}
	if resume.Link != "https://avito.ru/rezume/555" {
		t.Fatalf("link = %q", resume.Link)
	}
	if got := resume.ExperienceText(); got != "Worked the grill\nPrep station" {
		t.Fatalf("experience text = %q", got)
	}
}

func TestGetResumeNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	resume, err := client.GetResume(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetResume: %v", err)
	}
	if resume != nil {
		t.Fatalf("got %+v, want nil for an absent resume", resume)
	}
}

func TestVacancyResponsesFilterByVacancy(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/job/v1/applications/get_ids":
			if r.URL.Query().Get("updatedAtFrom") == "" {
				t.Error("updatedAtFrom missing")
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"applies": []map[string]interface{}{{"id": 1}, {"id": 2}, {"id": 3}},
			})
		case "/job/v1/applications/get_by_ids":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"applies": []map[string]interface{}{
					{"id": 1, "vacancy_id": 9, "resume_id": 71, "is_viewed": false, "created_at": "2025-02-01T12:00:00Z"},
					{"id": 2, "vacancy_id": 8, "resume_id": 72, "is_viewed": false},
					{"id": 3, "vacancy_id": 9, "is_viewed": true},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	responses, err := client.VacancyResponses(context.Background(), "9")
	if err != nil {
		t.Fatalf("VacancyResponses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("got %d responses, want 1", len(responses))
	}
	if responses[0].Resume.String() != "avito_71" {
		t.Fatalf("resume ref = %q", responses[0].Resume.String())
	}
	if !responses[0].Unread {
		t.Fatal("unviewed application should be unread")
	}
	want := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	if !responses[0].CreatedAt.Equal(want) {
		t.Fatalf("created at = %s, want %s", responses[0].CreatedAt, want)
	}
}

func TestNormalizeSalary(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want int
	}{
		{"number", float64(90000), 90000},
		{"numeric string", "120000", 120000},
		{"garbage string", "по договорённости", 0},
		{"absent", nil, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeSalary(tc.in)
			if tc.want == 0 {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil || got.Amount != tc.want || got.Currency != "RUR" {
				t.Fatalf("got %+v, want %d RUR", got, tc.want)
			}
		})
	}
}
