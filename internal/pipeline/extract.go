package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"

	"extracto/internal/logging"
	"extracto/internal/services"
	"extracto/internal/services/llm"
	"extracto/internal/tasks"
)

const (
	extractTextWindow  = 4000
	extractTemperature = 0.1
	extractMaxTokens   = 2000

	extractSystemPrompt = "You are a strict information extraction engine. " +
		"Return ONLY valid JSON strictly matching the provided schema."
)

// ExtractConfig is the step configuration for structured extraction.
type ExtractConfig struct {
	Schema json.RawMessage `json:"schema"`
	Model  string          `json:"model"`
}

// Extractor runs schema-guided extraction over the parsed text.
type Extractor struct {
	llm    llm.Service
	logger *slog.Logger
}

// NewExtractor constructs the extract step.
func NewExtractor(service llm.Service, logger *slog.Logger) *Extractor {
	return &Extractor{llm: service, logger: logging.NewComponentLogger(logger, "extract")}
}

// Run prompts the model with the configured schema and the parsed text.
// A missing schema is a configuration error. A model response that cannot
// be repaired into JSON degrades the result instead of failing the step:
// the raw response is preserved under raw_response with an invalid_json
// marker.
func (e *Extractor) Run(ctx context.Context, task *tasks.Task, pc *Context, cfg ExtractConfig, reporter StepReporter) error {
	return runStep(ctx, reporter, tasks.StepExtracting, func() error {
		logger := logging.WithContext(ctx, e.logger)

		if len(cfg.Schema) == 0 || strings.TrimSpace(string(cfg.Schema)) == "" ||
			strings.TrimSpace(string(cfg.Schema)) == "null" {
			return services.Wrap(services.ErrConfiguration, "extracting", "validate config",
				"extraction schema missing in workflow config", nil)
		}

		prompt := fmt.Sprintf("Schema:\n%s\n\nDocument:\n%s",
			string(cfg.Schema), truncateText(pc.Text, extractTextWindow))

		raw, err := e.llm.Generate(ctx, llm.Request{
			System:       extractSystemPrompt,
			Prompt:       prompt,
			Temperature:  extractTemperature,
			MaxTokens:    extractMaxTokens,
			Model:        cfg.Model,
			ResponseJSON: true,
		})
		if err != nil {
			return services.Wrap(services.ErrLLM, "extracting", "generate", "", err)
		}

		var payload any
		if decodeErr := llm.DecodeJSON(raw, &payload); decodeErr != nil {
			logger.Warn("extraction response is not valid json, keeping raw response",
				logging.Error(decodeErr))
			fallback, marshalErr := json.Marshal(map[string]string{
				"raw_response": raw,
				"error":        "invalid_json",
			})
			if marshalErr != nil {
				return services.Wrap(services.ErrLLM, "extracting", "encode fallback", "", marshalErr)
			}
			pc.Extracted = fallback
			return nil
		}

		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrLLM, "extracting", "encode result", "", err)
		}
		pc.Extracted = encoded
		logger.Info("extraction complete", logging.Int("result_bytes", len(encoded)))
		return nil
	})
}
