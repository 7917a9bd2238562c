package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/config"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/logger"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10

	publishRetryBase  = 100 * time.Millisecond
	publishRetryTries = 3
	maxBackoff        = 10 * time.Second
	jitterWindow      = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error
}

type streamPublisher interface {
	Ping(context.Context) error
	XAdd(ctx context.Context, stream string, values map[string]any) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Publisher  streamPublisher
}

// Service drains outbox_events into the order-events Redis stream.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	publisher    streamPublisher
	stream       string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("stream publisher is required")
	}
	if params.Config.Outbox.Stream == "" {
		return nil, errors.New("outbox stream name is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		publisher:    params.Publisher,
		stream:       params.Config.Outbox.Stream,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "redis", s.publisher.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch claims and delivers one batch. The claim, the delivery marks
// and the attempt counters commit together, so a crash mid-batch re-delivers
// at-least-once rather than losing events.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			if err := s.publishEvent(ctx, event); err != nil {
				logCtx := s.eventCtx(ctx, event)
				s.logg.Warn(logCtx, "outbox event publish failed")
				if event.AttemptCount+1 >= s.maxAttempts {
					s.logg.Error(logCtx, "outbox event exhausted attempts", err)
				}
				if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
					return markErr
				}
				continue
			}
			if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) publishEvent(ctx context.Context, event models.OutboxEvent) error {
	values := map[string]any{
		"event_id":       event.ID.String(),
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"payload":        string(event.Payload),
		"occurred_at":    event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	backoff := retry.WithMaxRetries(publishRetryTries, retry.NewExponential(publishRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := s.publisher.XAdd(ctx, s.stream, values); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Service) eventCtx(ctx context.Context, event models.OutboxEvent) context.Context {
	return s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"event_type": string(event.EventType),
		"attempts":   event.AttemptCount + 1,
	})
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	next := current * 2
	if next < floor {
		next = floor
	}
	if next > ceiling {
		next = ceiling
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
