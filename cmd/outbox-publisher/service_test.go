package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/acavero/shopline-backend/pkg/config"
	"github.com/acavero/shopline-backend/pkg/db/models"
	"github.com/acavero/shopline-backend/pkg/enums"
	"github.com/acavero/shopline-backend/pkg/logger"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (r *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

type fakePublisher struct {
	streams []string
	values  []map[string]any
	err     error
}

func (p *fakePublisher) Ping(context.Context) error { return nil }

func (p *fakePublisher) XAdd(_ context.Context, stream string, values map[string]any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.streams = append(p.streams, stream)
	p.values = append(p.values, values)
	return "0-1", nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Outbox.Stream = "test.order-events"
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxAttempts = 3
	cfg.Outbox.PollIntervalMS = 10
	return cfg
}

func testEvent() models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     time.Now(),
	}
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     testConfig(),
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		DB:         fakeDB{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	first, second := testEvent(), testEvent()
	repo := &fakeRepo{pending: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}
	if len(pub.values) != 2 {
		t.Fatalf("expected 2 stream entries, got %d", len(pub.values))
	}
	if pub.streams[0] != "test.order-events" {
		t.Fatalf("unexpected stream %q", pub.streams[0])
	}
	if got := pub.values[0]["event_id"]; got != first.ID.String() {
		t.Fatalf("expected event_id %s, got %v", first.ID, got)
	}
	if got := pub.values[0]["event_type"]; got != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type %v", got)
	}
	if len(repo.published) != 2 || len(repo.failed) != 0 {
		t.Fatalf("expected 2 published / 0 failed, got %d / %d", len(repo.published), len(repo.failed))
	}
}

func TestProcessBatchMarksFailedOnPublishError(t *testing.T) {
	event := testEvent()
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{err: errors.New("stream unavailable")}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}
	if len(repo.published) != 0 {
		t.Fatalf("expected no published marks, got %d", len(repo.published))
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("expected event marked failed, got %v", repo.failed)
	}
}

func TestProcessBatchIdleWhenEmpty(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, &fakePublisher{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("expected idle batch")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Outbox.Stream = "test.order-events"
	svc, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test"}),
		DB:         fakeDB{},
		Repository: &fakeRepo{},
		Publisher:  &fakePublisher{},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.batchSize != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", svc.batchSize)
	}
	if svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", svc.maxAttempts)
	}
	if svc.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", svc.pollInterval)
	}
}
