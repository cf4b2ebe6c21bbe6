package pipeline

import (
	"context"
	"strings"

	"log/slog"

	"extracto/internal/docconv"
	"extracto/internal/logging"
	"extracto/internal/services"
	"extracto/internal/services/objectstore"
	"extracto/internal/tasks"
)

// Parser converts ingested documents to plain text.
type Parser struct {
	objects *objectstore.Router
	logger  *slog.Logger
}

// NewParser constructs the parse step.
func NewParser(objects *objectstore.Router, logger *slog.Logger) *Parser {
	return &Parser{objects: objects, logger: logging.NewComponentLogger(logger, "parse")}
}

// Run reads and converts every handle from the ingest step and joins the
// texts with blank lines. Any single document failing to convert fails the
// whole step; no partial text is carried forward.
func (p *Parser) Run(ctx context.Context, task *tasks.Task, pc *Context, reporter StepReporter) error {
	return runStep(ctx, reporter, tasks.StepParsing, func() error {
		logger := logging.WithContext(ctx, p.logger)

		if len(pc.Handles) == 0 {
			return services.Wrap(services.ErrParse, "parsing", "convert documents",
				"no ingested documents to parse", nil)
		}

		texts := make([]string, 0, len(pc.Handles))
		for _, handle := range pc.Handles {
			data, err := p.objects.Read(ctx, handle.Location)
			if err != nil {
				return services.Wrap(services.ErrParse, "parsing", "read document",
					handle.Document.ID, err)
			}
			result, err := docconv.Convert(handle.Document.Name, data)
			if err != nil {
				return err
			}
			logger.Debug("document converted",
				logging.String("document_id", handle.Document.ID),
				logging.String("mime_type", result.MIMEType),
				logging.Int("chars", len(result.Text)),
			)
			texts = append(texts, result.Text)
		}

		pc.Text = strings.Join(texts, "\n\n")
		logger.Info("documents parsed",
			logging.Int("count", len(texts)),
			logging.Int("total_chars", len(pc.Text)),
		)
		return nil
	})
}
