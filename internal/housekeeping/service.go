// Package housekeeping runs scheduled archive maintenance. Prune drops
// sessions past the retention window; vacuum reclaims database space.
package housekeeping

import (
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/duskline/crosstalk/internal/config"
)

// Maintainer is the slice of the archive the janitor drives.
type Maintainer interface {
	PruneBefore(cutoff time.Time) (int64, error)
	Vacuum() error
}

type Service struct {
	archive       Maintainer
	retentionDays int
	pruneSpec     string
	vacuumSpec    string
	cron          *rcron.Cron
}

func NewService(archive Maintainer, cfg config.ArchiveConfig) *Service {
	return &Service{
		archive:       archive,
		retentionDays: cfg.RetentionDays,
		pruneSpec:     cfg.PruneSpec,
		vacuumSpec:    cfg.VacuumSpec,
	}
}

// Start registers both jobs and begins the schedule. Specs use the
// six-field form with a seconds column.
func (s *Service) Start() error {
	s.cron = rcron.New(rcron.WithSeconds())

	if _, err := s.cron.AddFunc(s.pruneSpec, s.runPrune); err != nil {
		return fmt.Errorf("register prune job (%s): %w", s.pruneSpec, err)
	}
	if _, err := s.cron.AddFunc(s.vacuumSpec, s.runVacuum); err != nil {
		return fmt.Errorf("register vacuum job (%s): %w", s.vacuumSpec, err)
	}

	s.cron.Start()
	log.Printf("[housekeeping] scheduled prune (%s) and vacuum (%s)", s.pruneSpec, s.vacuumSpec)
	return nil
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[housekeeping] stop timeout waiting for running jobs")
	}
	log.Printf("[housekeeping] stopped")
}

// RunPruneNow prunes immediately, outside the schedule. Retention of
// zero or less disables pruning.
func (s *Service) RunPruneNow() (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	pruned, err := s.archive.PruneBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	if pruned > 0 {
		log.Printf("[housekeeping] pruned %d sessions older than %d days", pruned, s.retentionDays)
	}
	return pruned, nil
}

func (s *Service) runPrune() {
	if _, err := s.RunPruneNow(); err != nil {
		log.Printf("[housekeeping] prune failed: %v", err)
	}
}

func (s *Service) runVacuum() {
	if err := s.archive.Vacuum(); err != nil {
		log.Printf("[housekeeping] vacuum failed: %v", err)
		return
	}
	log.Printf("[housekeeping] vacuum complete")
}
