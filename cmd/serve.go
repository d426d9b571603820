package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"resume-aggregator/internal/ai"
	"resume-aggregator/internal/ai/gemini"
	"resume-aggregator/internal/core"
	"resume-aggregator/internal/kv"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/provider"
	"resume-aggregator/internal/provider/avito"
	"resume-aggregator/internal/provider/hh"
	"resume-aggregator/internal/respcache"
	"resume-aggregator/internal/secrets"
	"resume-aggregator/internal/service"
	"resume-aggregator/internal/store"
	"resume-aggregator/internal/task"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultListen = ":8080"

	// responseCacheTTL only has to absorb identical requests repeated in a
	// tight window, so it stays in seconds.
	responseCacheTTL = 5 * time.Second
	// entityTTL is how long a stored resume snapshot is trusted before a
	// read falls through to the provider again.
	entityTTL = 48 * time.Hour
	// taskTTL is the retention window for task handles.
	taskTTL = 7 * 24 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the aggregation service and expose it over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address (default "+defaultListen+")")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the resume-aggregator", zap.String("version", version))

	manager, err := buildManager(ctx, config, logger)
	if err != nil {
		logger.Fatal("wiring the service", zap.Error(err))
	}

	listen := defaultListen
	if viper.GetString("server.listen") != "" {
		listen = viper.GetString("server.listen")
	} else if config.Server != nil && config.Server.Listen != "" {
		listen = config.Server.Listen
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           newMux(manager, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", zap.String("addr", listen))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func buildManager(ctx context.Context, config *Config, logger *zap.Logger) (*service.Manager, error) {
	if config.Redis == nil || config.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if config.Postgres == nil || config.Postgres.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}

	redis, err := kv.NewRedis(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	cache := respcache.New(redis, responseCacheTTL, logger)
	tracker := task.NewTracker(redis, taskTTL, logger)

	entities, err := store.NewPostgres(ctx, config.Postgres.DSN, entityTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("opening the resume store: %w", err)
	}

	clients, err := buildClients(config, cache, logger)
	if err != nil {
		return nil, err
	}

	scorer, minScore, err := buildScorer(ctx, config.AI, logger)
	if err != nil {
		return nil, err
	}

	return service.New(clients, tracker, entities, scorer, minScore, logger), nil
}

// buildClients constructs one client per configured provider. A provider
// with no configuration section is simply absent, not an error.
func buildClients(config *Config, cache *respcache.Cache, logger *zap.Logger) (map[core.Provider]provider.Client, error) {
	clients := make(map[core.Provider]provider.Client)

	if config.HH != nil {
		sources := make([]secrets.Source, 0, len(config.HH.TokenFiles))
		for i, file := range config.HH.TokenFiles {
			sources = append(sources, secrets.Source{
				Name: fmt.Sprintf("headhunter token %d", i+1),
				File: file,
			})
		}

		tokens, err := secrets.LoadAll(sources...)
		if err != nil {
			return nil, fmt.Errorf("loading headhunter tokens: %w", err)
		}

		clientSecret, err := secrets.Load(secrets.Source{
			Name: "headhunter client secret",
			File: config.HH.ClientSecretFile,
		})
		if err != nil {
			return nil, err
		}

		refreshToken, err := secrets.Load(secrets.Source{
			Name: "headhunter refresh token",
			File: config.HH.RefreshTokenFile,
		})
		if err != nil {
			return nil, err
		}

		clients[core.ProviderHH] = hh.New(&hh.Config{
			Tokens:       tokens,
			ClientID:     config.HH.ClientID,
			ClientSecret: clientSecret,
			RefreshToken: refreshToken,
			EmployerID:   config.HH.EmployerID,
		}, cache, logger)
	}

	if config.Avito != nil {
		clientSecret, err := secrets.Load(secrets.Source{
			Name: "avito client secret",
			File: config.Avito.ClientSecretFile,
		})
		if err != nil {
			return nil, err
		}

		clients[core.ProviderAvito] = avito.New(&avito.Config{
			ClientID:     config.Avito.ClientID,
			ClientSecret: clientSecret,
		}, logger)
	}

	if len(clients) == 0 {
		return nil, errors.New("at least one provider must be configured")
	}

	return clients, nil
}

// buildScorer returns a nil scorer when AI matching is disabled; the
// pipeline treats a nil scorer as a no-op.
func buildScorer(ctx context.Context, config *AIConfig, logger *zap.Logger) (ai.Scorer, float64, error) {
	if config == nil || !config.Enabled {
		return nil, 0, nil
	}

	if config.Gemini == nil {
		return nil, 0, errors.New("gemini configuration is required when ai matching is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, config.Gemini.Model)
	if err != nil {
		return nil, 0, fmt.Errorf("building the gemini generator: %w", err)
	}

	minScore := config.MinimumMatchScore
	if minScore < 0 {
		minScore = 0
	}

	scorerLogger := logger.With(
		zap.String("model", generator.Model()),
		zap.Float64("minimum_match_score", minScore),
	)

	return gemini.NewScorer(generator, scorerLogger), minScore, nil
}

type searchRequest struct {
	Providers   []string       `json:"providers"`
	Filters     map[string]any `json:"filters"`
	Description string         `json:"description"`
}

type resultPayload struct {
	Resume      core.Resume `json:"resume"`
	Percent     float64     `json:"percent"`
	Explanation string      `json:"explanation"`
}

type taskPayload struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Found       int       `json:"found"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newMux(manager *service.Manager, logger *zap.Logger) *http.ServeMux {
	s := &server{manager: manager, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/tasks/{id}/items", s.handleTaskItems)
	mux.HandleFunc("GET /api/vacancies", s.handleVacancies)
	mux.HandleFunc("POST /api/vacancies/refresh", s.handleVacanciesRefresh)
	mux.HandleFunc("GET /api/vacancies/{provider}/{id}/responses", s.handleResponses)
	mux.HandleFunc("POST /api/vacancies/{provider}/{id}/responses/refresh", s.handleResponsesRefresh)
	mux.HandleFunc("POST /api/vacancies/{provider}/{id}/responses/read", s.handleResponsesRead)

	return mux
}

type server struct {
	manager *service.Manager
	logger  *zap.Logger
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	var filters provider.SearchFilters
	if err := mapstructure.Decode(req.Filters, &filters); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding filters: %w", err))
		return
	}

	providers := make([]core.Provider, 0, len(req.Providers))
	for _, p := range req.Providers {
		providers = append(providers, core.Provider(p))
	}

	handle, err := s.manager.SearchResumes(r.Context(), providers, &filters, req.Description)
	if err != nil {
		// the handle, when present, still points at the failed task
		s.writeJSON(w, s.statusFor(err), map[string]any{
			"task_id": handle,
			"error":   err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"task_id": handle})
}

func (s *server) handleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.manager.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, taskPayload{
		ID:          t.ID,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Found:       len(t.Refs),
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	})
}

func (s *server) handleTaskItems(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := s.manager.GetTaskItems(r.Context(), r.PathValue("id"), offset, limit)
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	items := make([]resultPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, resultPayload{
			Resume:      item.Resume,
			Percent:     item.Percent,
			Explanation: item.Explanation,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"found": page.Found,
		"items": items,
	})
}

func (s *server) handleVacancies(w http.ResponseWriter, r *http.Request) {
	vacancies, err := s.manager.GetVacancies(r.Context())
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"items": vacancies})
}

func (s *server) handleVacanciesRefresh(w http.ResponseWriter, r *http.Request) {
	handle, err := s.manager.StartVacanciesTask(r.Context())
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": handle})
}

func (s *server) handleResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := s.manager.GetVacancyResponses(r.Context(), core.Provider(r.PathValue("provider")), r.PathValue("id"))
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"items": responses})
}

func (s *server) handleResponsesRefresh(w http.ResponseWriter, r *http.Request) {
	handle, err := s.manager.StartResponsesTask(r.Context(), core.Provider(r.PathValue("provider")), r.PathValue("id"))
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": handle})
}

func (s *server) handleResponsesRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	ok := s.manager.MarkResponsesRead(r.Context(), core.Provider(r.PathValue("provider")), r.PathValue("id"), req.IDs)

	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

func (s *server) statusFor(err error) int {
	if errors.Is(err, service.ErrTaskNotFound) {
		return http.StatusNotFound
	}

	switch provider.ClassOf(err) {
	case provider.ClassValidation:
		return http.StatusBadRequest
	case provider.ClassNotFound:
		return http.StatusNotFound
	case provider.ClassRateLimited, provider.ClassTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("writing response", zap.Error(err))
	}
}
