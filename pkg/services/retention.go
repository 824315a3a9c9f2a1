package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fsayahmob/DataTalk-sub001/pkg/repositories"
)

// RetentionService periodically deletes terminal jobs older than the
// configured TTL so the jobs table does not grow without bound.
type RetentionService struct {
	repo     repositories.JobRepository
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// NewRetentionService creates a retention sweeper.
func NewRetentionService(repo repositories.JobRepository, ttl, interval time.Duration, logger *zap.Logger) *RetentionService {
	return &RetentionService{
		repo:     repo,
		ttl:      ttl,
		interval: interval,
		logger:   logger.Named("retention"),
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Blocks;
// callers start it in a goroutine.
func (s *RetentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweep started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one deletion pass. Failures are logged and retried on the next
// tick rather than propagated.
func (s *RetentionService) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.ttl)

	deleted, err := s.repo.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("expired jobs deleted",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}
