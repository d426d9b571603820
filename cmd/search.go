package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/pipeline"
	"resume-aggregator/internal/provider"
	"resume-aggregator/internal/search"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptShowResults = "Show results"
	PromptDumpToFile  = "Dump results to file"
	PromptExit        = "Exit"
)

var errExit = errors.New("exit requested")

var searchPrompt = promptui.Select{
	Label: "Found candidates. What next?",
	Items: []string{PromptShowResults, PromptDumpToFile, PromptExit},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a one-shot resume search from the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		runSearch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("query", "q", "", "search keywords")
	searchCmd.Flags().IntP("total", "t", 20, "how many resumes to collect across all providers")
	searchCmd.Flags().StringSliceP("provider", "p", nil, "providers to query (default all configured)")
	searchCmd.Flags().String("description", "", "vacancy description used for AI match scoring")
}

// runSearch is the one-shot variant of the service: search, refine, print.
// Nothing is persisted.
func runSearch(cmd *cobra.Command) {
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

	query, _ := cmd.Flags().GetString("query")
	total, _ := cmd.Flags().GetInt("total")
	providerNames, _ := cmd.Flags().GetStringSlice("provider")
	description, _ := cmd.Flags().GetString("description")

	clients, err := buildClients(config, nil, logger)
	if err != nil {
		logger.Fatal("building provider clients", zap.Error(err))
	}

	searchers := make(map[core.Provider]provider.Searcher, len(clients))
	providers := make([]core.Provider, 0, len(clients))
	for p, c := range clients {
		searchers[p] = c
		providers = append(providers, p)
	}

	if len(providerNames) > 0 {
		providers = providers[:0]
		for _, name := range providerNames {
			providers = append(providers, core.Provider(name))
		}
	}

	filters := &provider.SearchFilters{
		Keywords: query,
		Total:    total,
	}

	logger.Info("starting the search", zap.String("query", query), zap.Int("total", total))

	resumes, err := search.New(searchers, logger).Search(ctx, providers, filters)
	if err != nil {
		logger.Fatal("search failed", zap.Error(err))
	}

	if len(resumes) == 0 {
		logger.Info("exiting", zap.String("reason", "no resumes found"))
		return
	}

	scorer, minScore, err := buildScorer(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the scorer", zap.Error(err))
	}

	steps := []pipeline.Step{
		pipeline.NewDedupe(),
		pipeline.NewScore(),
		pipeline.NewMinScore(minScore),
	}

	deps := pipeline.Deps{
		Logger:      logger,
		Scorer:      scorer,
		Description: description,
	}

	results, err := pipeline.Run(ctx, deps, steps, pipeline.Wrap(resumes))
	if err != nil {
		logger.Fatal("refining results", zap.Error(err))
	}

	if len(results) == 0 {
		logger.Info("exiting", zap.String("reason", "no resumes left after refinement"))
		return
	}

	for {
		logger.Info("current list of candidates", zap.Int("count", len(results)))

		_, action, err := searchPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleSearchAction(action, results, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleSearchAction(action string, results []pipeline.Result, logger *zap.Logger) error {
	switch action {
	case PromptShowResults:
		for _, r := range results {
			line := fmt.Sprintf("%s %s / %s", r.Resume.Ref(), r.Resume.FullName(), r.Resume.Title)
			if r.Explanation != "" {
				line = fmt.Sprintf("%s / %.1f%% %s", line, r.Percent, r.Explanation)
			}
			fmt.Println(line)
		}
		return nil
	case PromptDumpToFile:
		filename, err := dumpResults(results)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping results to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func dumpResults(results []pipeline.Result) (string, error) {
	file, err := os.CreateTemp("", app+"-results-*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	pretty, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}

	if _, err := file.Write(pretty); err != nil {
		return "", err
	}

	return file.Name(), nil
}
