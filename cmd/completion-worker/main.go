package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/robertarktes/event-ticketing/internal/config"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	worker := NewCompletionWorker(repo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown completion worker")
}

// CompletionWorker flips published events whose end time has passed to
// completed, so stale events stop accepting purchases for good.
type CompletionWorker struct {
	repo   *crdb.Repository
	logger observability.Logger
}

func NewCompletionWorker(repo *crdb.Repository, logger observability.Logger) *CompletionWorker {
	return &CompletionWorker{repo: repo, logger: logger}
}

func (w *CompletionWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			events, err := w.repo.ListPublishedEndedBefore(ctx, now.UTC())
			if err != nil {
				w.logger.WithError(err).Error("failed to list ended events")
				continue
			}
			for _, event := range events {
				if err := w.completeWithRetry(ctx, event); err != nil {
					w.logger.WithError(err).WithField("event_id", event.ID).
						Error("failed to complete event after retries")
				}
			}
		}
	}
}

func (w *CompletionWorker) completeWithRetry(ctx context.Context, event domain.Event) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.repo.UpdateEventStatus(ctx, event.ID, domain.EventPublished, domain.EventCompleted)
		if err == nil {
			w.logger.WithField("event_id", event.ID).Info("event completed")
			return nil
		}
		// Another worker instance got there first.
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrEventNotFound) {
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
