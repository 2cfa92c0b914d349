package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ReadinessChecker reports whether a batch has completed
type ReadinessChecker interface {
	IsIngestionReady(ctx context.Context) (bool, error)
}

// WaitForIngestion polls checker until a batch has completed or ctx ends
func WaitForIngestion(ctx context.Context, checker ReadinessChecker, interval time.Duration) error {
	log.Info().Msg("Waiting for ingestion to complete...")

	check := func() bool {
		ready, err := checker.IsIngestionReady(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error checking ingestion status")
			return false
		}
		return ready
	}

	if check() {
		log.Info().Msg("Ingestion completed, API is ready to serve requests")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if check() {
				log.Info().Msg("Ingestion completed, API is ready to serve requests")
				return nil
			}
			log.Info().Msg("Ingestion still in progress, waiting...")
		}
	}
}
