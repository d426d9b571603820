package gemini

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"resume-aggregator/internal/ai"
	"resume-aggregator/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// Scorer turns the generator's free-text answer into a percent score. Any
// backend or parse failure degrades to the defined fallback; the scorer
// never surfaces an error.
type Scorer struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		generator: generator,
		logger:    logger,
		maxLogLen: defaultMaxLogLength,
	}
}

func (s *Scorer) Evaluate(ctx context.Context, experience, description string) ai.Score {
	if strings.TrimSpace(experience) == "" || strings.TrimSpace(description) == "" {
		s.logger.Warn("not enough data for a match assessment")
		return ai.Fallback()
	}

	prompt := buildPrompt(experience, description)
	s.logger.Debug("generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Error("match assessment failed", zap.Error(err))
		return ai.Fallback()
	}

	s.logger.Debug("generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	score, ok := parseResponse(raw)
	if !ok {
		s.logger.Error("unparseable match assessment", zap.String("response", utils.TruncateForLog(raw, s.maxLogLen)))
		return ai.Fallback()
	}

	return score
}

func buildPrompt(experience, description string) string {
	prompt := strings.ReplaceAll(promptTemplate, "{{VACANCY_DESCRIPTION}}", description)
	return strings.ReplaceAll(prompt, "{{CANDIDATE_EXPERIENCE}}", experience)
}

// parseResponse expects "NN% explanation". The percent is clamped to 0-100
// and the explanation is truncated to the shared limit.
func parseResponse(raw string) (ai.Score, bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return ai.Score{}, false
	}

	percentText := strings.TrimSuffix(fields[0], "%")
	percent, err := strconv.ParseFloat(percentText, 64)
	if err != nil || math.IsNaN(percent) {
		return ai.Score{}, false
	}
	percent = math.Round(percent*10) / 10
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	explanation := strings.TrimSpace(strings.Join(fields[1:], " "))
	if runes := []rune(explanation); len(runes) > ai.MaxExplanationLen {
		explanation = string(runes[:ai.MaxExplanationLen])
	}

	return ai.Score{Percent: percent, Explanation: explanation}, true
}
