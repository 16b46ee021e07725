// Package extract runs the flyer pipeline: selection, rasterization, table
// extraction and aggregation.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Bens368/IGIA/internal/cache"
	"github.com/Bens368/IGIA/internal/domain"
	"github.com/Bens368/IGIA/internal/observability"
	"github.com/Bens368/IGIA/internal/selector"
	"github.com/Bens368/IGIA/internal/tables"
)

// Config holds the pipeline settings that are not collaborators.
type Config struct {
	Rules         selector.Rules
	AggregatePath string
}

// Service orchestrates the flyer extraction process
type Service struct {
	config     Config
	rasterizer domain.Rasterizer
	model      domain.TableModel
	cache      *cache.TableCache
	logger     *observability.Logger
}

// NewService creates a new extraction service. tableCache may be nil.
func NewService(config Config, rasterizer domain.Rasterizer, model domain.TableModel, tableCache *cache.TableCache, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		config:     config,
		rasterizer: rasterizer,
		model:      model,
		cache:      tableCache,
		logger:     logger.WithOperation("extract"),
	}
}

// Process runs every stage up to the persisted aggregate, recording progress
// on run. Per-image extraction failures are recorded and skipped; any other
// failure marks the run failed and is returned.
func (s *Service) Process(ctx context.Context, run *domain.Run, eventCh chan<- domain.StreamEvent) error {
	startTime := time.Now()
	logger := s.logger.WithRun(run.ID.String())

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: fmt.Sprintf("Starting run %s with %d uploaded files", run.ID, len(run.Documents)),
	})

	selected, err := selector.Select(run.Documents, s.config.Rules)
	if err != nil {
		return s.fail(run, eventCh, err)
	}
	run.Selected = selected

	names := make([]string, len(selected))
	for i, doc := range selected {
		names[i] = doc.Name
	}
	logger.Info().Strs("documents", names).Msg("Documents selected")
	s.emitEvent(eventCh, domain.StreamEvent{Type: domain.EventDocumentsSelected, Payload: names})

	images, err := s.rasterizer.Rasterize(ctx, selected)
	if err != nil {
		return s.fail(run, eventCh, err)
	}
	run.Images = images
	for _, img := range images {
		s.emitEvent(eventCh, domain.StreamEvent{Type: domain.EventPageRasterized, Position: img.Position, Payload: img.Path})
	}

	if err := s.ExtractTables(ctx, run, eventCh); err != nil {
		return s.fail(run, eventCh, err)
	}

	agg, err := tables.Aggregate(run.Tables)
	if err != nil {
		return s.fail(run, eventCh, err)
	}
	if err := tables.WriteCSV(s.config.AggregatePath, agg); err != nil {
		return s.fail(run, eventCh, err)
	}
	run.Aggregate = agg
	run.AggregatePath = s.config.AggregatePath

	s.emitEvent(eventCh, domain.StreamEvent{
		Type:    domain.EventAggregated,
		Payload: fmt.Sprintf("%d rows from %d tables written to %s", agg.Len(), len(run.Tables), run.AggregatePath),
	})

	run.Finish(domain.RunExtracted)
	duration := time.Since(startTime)
	logger.Info().
		Int("images", len(run.Images)).
		Int("tables", len(run.Tables)).
		Int("failures", len(run.Failures)).
		Int("rows", agg.Len()).
		Dur("duration", duration).
		Msg("Extraction complete")

	s.emitEvent(eventCh, domain.StreamEvent{
		Type: domain.EventComplete,
		Payload: fmt.Sprintf("Extraction complete: %d/%d images successful in %v",
			len(run.Tables), len(run.Images), duration.Round(time.Millisecond)),
	})
	return nil
}

// ExtractTables asks the model for a table on every image of run, in order.
// A reply that fails validation is recorded once on run.Failures and skipped.
// Any other error stops the stage and is returned.
func (s *Service) ExtractTables(ctx context.Context, run *domain.Run, eventCh chan<- domain.StreamEvent) error {
	logger := s.logger.WithRun(run.ID.String())

	for _, img := range run.Images {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:     domain.EventImageProcessing,
			Position: img.Position,
			Payload:  fmt.Sprintf("Processing image %d (%s)", img.Position, img.SourceName),
		})

		table, cached, err := s.extractImage(ctx, img)
		if err != nil {
			if !domain.IsType(err, domain.ErrorTypeSchema) {
				return err
			}
			logger.Warn().Int("position", img.Position).Str("image", img.Path).Err(err).Msg("Skipping image")
			run.AddFailure(img, err)
			s.emitEvent(eventCh, domain.StreamEvent{
				Type:     domain.EventError,
				Position: img.Position,
				Payload:  fmt.Sprintf("image %d: %v", img.Position, err),
			})
			continue
		}

		table.Position = img.Position
		table.Source = img.SourceName
		run.Tables = append(run.Tables, table)

		s.emitEvent(eventCh, domain.StreamEvent{
			Type:     domain.EventImageComplete,
			Position: img.Position,
			Payload:  map[string]any{"rows": len(table.Items), "cached": cached},
		})
	}
	return nil
}

func (s *Service) extractImage(ctx context.Context, img domain.RasterImage) (domain.ItemTable, bool, error) {
	var key string
	if s.cache.Enabled() {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			return domain.ItemTable{}, false, domain.IOError(fmt.Sprintf("Failed to read %s", img.Path), err)
		}
		key = cache.ExtractionKey(s.model.VisionModel(), data)

		table, err := s.cache.Get(ctx, key)
		if err == nil {
			return table, true, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn().Str("key", key).Err(err).Msg("Cache lookup failed")
		}
	}

	reply, err := s.model.ExtractTable(ctx, img.Path)
	if err != nil {
		return domain.ItemTable{}, false, err
	}

	table, err := tables.Parse(reply)
	if err != nil {
		return domain.ItemTable{}, false, err
	}

	if key != "" {
		if err := s.cache.Set(ctx, key, table); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Cache store failed")
		}
	}
	return table, false, nil
}

func (s *Service) fail(run *domain.Run, eventCh chan<- domain.StreamEvent, err error) error {
	run.Fail(err)
	s.logger.WithRun(run.ID.String()).Error().Err(err).Msg("Run failed")
	s.emitError(eventCh, err)
	return err
}

// emitEvent safely emits an event to the channel
func (s *Service) emitEvent(eventCh chan<- domain.StreamEvent, event domain.StreamEvent) {
	if eventCh == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case eventCh <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Msg("Event channel full, dropping event")
	}
}

// emitError emits an error event
func (s *Service) emitError(eventCh chan<- domain.StreamEvent, err error) {
	s.emitEvent(eventCh, domain.StreamEvent{
		Type:    domain.EventError,
		Payload: err.Error(),
	})
}
