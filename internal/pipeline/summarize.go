package pipeline

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"extracto/internal/logging"
	"extracto/internal/services"
	"extracto/internal/services/llm"
	"extracto/internal/tasks"
)

const (
	summaryTextWindow  = 8000
	summaryTemperature = 0.3
	summaryMaxTokens   = 500
)

// DefaultSummaryLevels are used when the workflow config names none.
var DefaultSummaryLevels = []string{"executive", "detailed"}

// SummarizeConfig is the step configuration for summarization.
type SummarizeConfig struct {
	Levels []string `json:"levels"`
	Model  string   `json:"model"`
}

// Summarizer produces one summary per configured level.
type Summarizer struct {
	llm    llm.Service
	logger *slog.Logger
}

// NewSummarizer constructs the summarize step.
func NewSummarizer(service llm.Service, logger *slog.Logger) *Summarizer {
	return &Summarizer{llm: service, logger: logging.NewComponentLogger(logger, "summarize")}
}

// Run generates a summary for each configured level and collects them by
// level name. A model failure on any level fails the whole step.
func (s *Summarizer) Run(ctx context.Context, task *tasks.Task, pc *Context, cfg SummarizeConfig, reporter StepReporter) error {
	return runStep(ctx, reporter, tasks.StepSummarizing, func() error {
		logger := logging.WithContext(ctx, s.logger)

		levels := cfg.Levels
		if len(levels) == 0 {
			levels = DefaultSummaryLevels
		}

		window := truncateText(pc.Text, summaryTextWindow)
		summaries := make(map[string]string, len(levels))
		for _, level := range levels {
			level = strings.ToLower(strings.TrimSpace(level))
			if level == "" {
				continue
			}
			raw, err := s.llm.Generate(ctx, llm.Request{
				System:      summarySystemPrompt(level),
				Prompt:      fmt.Sprintf("Summarize the following document (max 300 words):\n\n%s", window),
				Temperature: summaryTemperature,
				MaxTokens:   summaryMaxTokens,
				Model:       cfg.Model,
			})
			if err != nil {
				return services.Wrap(services.ErrLLM, "summarizing", "generate "+level, "", err)
			}
			summaries[level] = strings.TrimSpace(raw)
		}

		pc.Summaries = summaries
		logger.Info("summaries generated", logging.Int("levels", len(summaries)))
		return nil
	})
}

func summarySystemPrompt(level string) string {
	switch level {
	case "executive":
		return "Generate a concise, factual executive summary of the document."
	case "detailed":
		return "Generate a detailed, structured summary of the document."
	default:
		return fmt.Sprintf("Generate a %s summary of the document.", level)
	}
}
