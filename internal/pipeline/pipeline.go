package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-table-service/internal/domain"
	"github.com/couchcryptid/station-table-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrRetriesExhausted is returned by Run when the source or the changelog
// keeps failing past the configured retry budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Extractor blocks until the next record from the source is available.
type Extractor interface {
	Extract(ctx context.Context) (domain.RawEvent, error)
}

// Transformer converts a raw record into a table value.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.TransformedStation, error)
}

// Loader durably applies a table value.
type Loader interface {
	Upsert(ctx context.Context, station domain.TransformedStation) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used for retry backoff.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithMaxRetries sets how many consecutive failures are tolerated before Run gives up.
func WithMaxRetries(n int) Option {
	return func(p *Pipeline) { p.maxRetries = n }
}

// WithName labels the pipeline's log records, useful when several run in parallel.
func WithName(name string) Option {
	return func(p *Pipeline) { p.logger = p.logger.With("consumer", name) }
}

// Pipeline consumes one source subscription record by record and applies
// each transformed record to the table.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	maxRetries  int
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		maxRetries:  5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes records until ctx is cancelled. Cancellation is observed only
// between records; a record that has been fetched is either fully applied or
// left uncommitted for redelivery. Run returns an error only when retries are
// exhausted.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.metrics.PipelineRunning.Inc()
	defer p.metrics.PipelineRunning.Dec()

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		raw, err := p.extract(ctx)
		if err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				return err
			}
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			return err
		}

		if err := p.process(ctx, raw); err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				return err
			}
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			return err
		}
	}
}

// extract fetches the next record, retrying transport failures with backoff.
func (p *Pipeline) extract(ctx context.Context) (domain.RawEvent, error) {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		raw, err := p.extractor.Extract(ctx)
		if err == nil {
			p.metrics.MessagesConsumed.Inc()
			return raw, nil
		}
		if ctx.Err() != nil {
			return domain.RawEvent{}, ctx.Err()
		}

		p.metrics.ExtractErrors.Inc()
		p.logger.Error("extract failed", "error", err, "attempt", attempt)
		if attempt >= p.maxRetries {
			return domain.RawEvent{}, fmt.Errorf("extract: %w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}
		if !p.sleep(ctx, backoff) {
			return domain.RawEvent{}, ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

// process transforms and applies one record, then commits its offset.
// Malformed records are committed and skipped so they never stall the partition.
func (p *Pipeline) process(ctx context.Context, raw domain.RawEvent) error {
	station, err := p.transformer.Transform(ctx, raw)
	if err != nil {
		p.logger.Warn("transform failed, skipping message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		p.metrics.TransformErrors.Inc()
		p.commitOffset(ctx, raw)
		return nil
	}

	if err := p.load(ctx, raw, station); err != nil {
		return err
	}

	p.commitOffset(ctx, raw)
	return nil
}

// load applies the station, retrying changelog failures. An upsert already
// in flight is not interrupted by shutdown.
func (p *Pipeline) load(ctx context.Context, raw domain.RawEvent, station domain.TransformedStation) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := p.loader.Upsert(context.WithoutCancel(ctx), station)
		if err == nil {
			return nil
		}

		p.logger.Error("upsert failed",
			"error", err,
			"attempt", attempt,
			"station_id", station.StationID,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		if attempt >= p.maxRetries {
			return fmt.Errorf("upsert station %d: %w after %d attempts: %w", station.StationID, ErrRetriesExhausted, attempt, err)
		}
		if !p.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
