package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"docchat/gateway/internal/cache"
	"docchat/gateway/internal/config"
)

const jobTimeout = 10 * time.Second

// Prober is satisfied by *upstream.Client.
type Prober interface {
	Probe(ctx context.Context, path string) error
}

// Trimmer is satisfied by *queue.Producer.
type Trimmer interface {
	Trim(ctx context.Context) error
}

// Pruner is satisfied by *repository.EventRepository.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	cfg     config.JobsConfig
	prober  Prober
	trimmer Trimmer
	pruner  Pruner
	cache   *redis.Client
	log     zerolog.Logger
	now     func() time.Time
}

// NewScheduler builds the gateway's periodic jobs. A nil cache skips storing
// probe results; a nil trimmer or pruner skips that job.
func NewScheduler(cfg config.JobsConfig, prober Prober, trimmer Trimmer, pruner Pruner, cache *redis.Client, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		prober:  prober,
		trimmer: trimmer,
		pruner:  pruner,
		cache:   cache,
		log:     log,
		now:     time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.cfg.HealthProbe != "" {
		if _, err := s.cron.AddFunc(s.cfg.HealthProbe, s.probeBackend); err != nil {
			return err
		}
	}
	if s.cfg.TrimSchedule != "" && s.trimmer != nil {
		if _, err := s.cron.AddFunc(s.cfg.TrimSchedule, s.trimRetryStream); err != nil {
			return err
		}
	}

	if s.cfg.RetentionSchedule != "" && s.cfg.AuditRetention > 0 && s.pruner != nil {
		if _, err := s.cron.AddFunc(s.cfg.RetentionSchedule, s.pruneAuditTrail); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) probeBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	status := s.probe(ctx)
	if s.cache == nil {
		return
	}
	if err := cache.SetBackendHealth(ctx, s.cache, status); err != nil {
		s.log.Error().Err(err).Msg("store backend health failed")
	}
}

func (s *Scheduler) probe(ctx context.Context) string {
	if err := s.prober.Probe(ctx, "/health"); err != nil {
		s.log.Warn().Err(err).Msg("backend health probe failed")
		return "error"
	}
	return "ok"
}

func (s *Scheduler) trimRetryStream() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.trimmer.Trim(ctx); err != nil {
		s.log.Error().Err(err).Msg("trim logout retry stream failed")
	}
}

func (s *Scheduler) pruneAuditTrail() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.AuditRetention)
	removed, err := s.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("prune audit trail failed")
		return
	}
	s.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("audit trail pruned")
}
