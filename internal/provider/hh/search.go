package hh

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/provider"
)

const searchPath = "/resumes"

// searchParams is the wire-level query of the resume search. The hhparam tag
// names the query key; slice fields become repeated parameters.
type searchParams struct {
	Text            []string `hhparam:"text"`
	Areas           []string `hhparam:"area"`
	JobSearchStatus []string `hhparam:"job_search_status"`
	Labels          []string `hhparam:"label"`
	Experience      []string `hhparam:"experience"`
	Schedules       []string `hhparam:"schedule"`
	Employments     []string `hhparam:"employment"`
	SalaryFrom      int      `hhparam:"salary_from"`
	SalaryTo        int      `hhparam:"salary_to"`
	Currency        string   `hhparam:"currency"`
	Relocation      string   `hhparam:"relocation"`
	OrderBy         string   `hhparam:"order_by"`
	Period          int      `hhparam:"period"`
	DateFrom        string   `hhparam:"date_from"`
	DateTo          string   `hhparam:"date_to"`
	Page            int      `hhparam:"page"`
	PerPage         int      `hhparam:"per_page"`
}

func (c *Client) SearchResumes(ctx context.Context, filters *provider.SearchFilters) ([]core.Resume, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	perPage := filters.PerPage
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}

	params := translateFilters(filters)

	var resumes []core.Resume
	page := 0
	shortStreak := 0

	for len(resumes) < filters.Total {
		params.Page = page
		params.PerPage = min(perPage, filters.Total-len(resumes))

		var response pageResponse
		err := c.retry.Do(ctx, searchPath, func(ctx context.Context) error {
			response = pageResponse{}
			return c.getJSON(ctx, searchPath, buildParams(params), &response)
		})
		if err != nil {
			return nil, fmt.Errorf("searching resumes on page %d: %w", page, err)
		}

		items, err := decodeSearchItems(response.Items)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			resumes = append(resumes, item.toResume())
		}

		c.logger.Debug("got search page",
			zap.Int("page", page),
			zap.Int("items", len(response.Items)),
			zap.Int("collected", len(resumes)),
		)

		if len(response.Items) < params.PerPage {
			shortStreak++
			if shortStreak >= shortPageStop {
				c.logger.Debug("upstream ran out of results", zap.Int("short_pages", shortStreak))
				break
			}
		} else {
			shortStreak = 0
		}

		page++
	}

	if len(resumes) > filters.Total {
		resumes = resumes[:filters.Total]
	}

	return resumes, nil
}

func translateFilters(filters *provider.SearchFilters) *searchParams {
	params := &searchParams{
		Text:            strings.Fields(filters.Keywords),
		Areas:           filters.Regions,
		JobSearchStatus: []string{"active_search", "looking_for_offers"},
		Labels:          filters.Labels,
		Experience:      filters.Experience,
		Schedules:       filters.Schedule,
		Employments:     filters.Employment,
		SalaryFrom:      filters.SalaryFrom,
		SalaryTo:        filters.SalaryTo,
		Currency:        filters.Currency,
		Relocation:      filters.Relocation,
		OrderBy:         filters.OrderBy,
		Period:          filters.PeriodDays,
		DateFrom:        filters.DateFrom,
		DateTo:          filters.DateTo,
	}

	if (filters.SalaryFrom > 0 || filters.SalaryTo > 0) && len(params.Labels) == 0 {
		params.Labels = []string{"only_with_salary"}
	}
	if params.Relocation == "" {
		params.Relocation = "living"
	}

	return params
}

// buildParams renders searchParams into query values using the hhparam tag.
// Zero scalars and empty slices are omitted except page, which is always
// meaningful.
func buildParams(params *searchParams) url.Values {
	q := url.Values{}
	fields := reflect.VisibleFields(reflect.TypeOf(*params))
	for _, field := range fields {
		key := field.Tag.Get("hhparam")
		if key == "" {
			continue
		}

		value := reflect.ValueOf(params).Elem().Field(field.Index[0])
		switch field.Type.Kind() {
		case reflect.Slice:
			for _, v := range value.Interface().([]string) {
				q.Add(key, v)
			}
		case reflect.Int:
			n := int(value.Int())
			if n != 0 || key == "page" {
				q.Set(key, strconv.Itoa(n))
			}
		default:
			if s := value.String(); s != "" {
				q.Set(key, s)
			}
		}
	}

	return q
}

func decodeSearchItems(items []map[string]interface{}) ([]*resumePayload, error) {
	var decoded []*resumePayload
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &decoded,
		TagName:  "json",
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, &provider.Error{
			Class:    provider.ClassUpstreamShape,
			Provider: core.ProviderHH,
			Endpoint: searchPath,
			Err:      err,
		}
	}
	return decoded, nil
}
