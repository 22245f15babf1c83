// Package janitor runs the periodic cleanup cycle: expired console sessions,
// secret references whose upstream release did not go through, and the
// sign-in limiter map. Cleanup is fail-safe; an error in one step never
// stops the others.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
	"github.com/voxdesk/voxdesk/console-plane/internal/store"
	"github.com/voxdesk/voxdesk/console-plane/internal/upstream"
)

// CycleStats tracks what happened in a single cleanup cycle.
type CycleStats struct {
	SessionsPurged  int
	SecretsReleased int
	SecretsPending  int
	Errors          []error
}

// Janitor owns the cron schedule and the cleanup cycle.
type Janitor struct {
	store    store.Store
	upstream upstream.Client
	identity *identity.Service

	// serviceToken authenticates janitor-initiated upstream calls; user
	// bearer tokens are not available outside a request.
	serviceToken string
	schedule     string

	cron *cron.Cron
}

// New creates a janitor with a cron schedule such as "@every 10m".
func New(s store.Store, up upstream.Client, ident *identity.Service, serviceToken, schedule string) *Janitor {
	return &Janitor{
		store:        s,
		upstream:     up,
		identity:     ident,
		serviceToken: serviceToken,
		schedule:     schedule,
		cron:         cron.New(),
	}
}

// Start registers the cycle on the schedule and starts the cron runner.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		stats := j.RunCycle(ctx)
		log.Info().
			Int("sessions_purged", stats.SessionsPurged).
			Int("secrets_released", stats.SecretsReleased).
			Int("secrets_pending", stats.SecretsPending).
			Int("errors", len(stats.Errors)).
			Msg("janitor cycle complete")
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	log.Info().Str("schedule", j.schedule).Msg("janitor started")
	return nil
}

// Stop halts the cron runner and waits for a running cycle to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// RunCycle performs one cleanup pass.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats
	now := time.Now().UTC()

	purged, err := j.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		log.Warn().Err(err).Msg("expired session sweep failed")
	}
	stats.SessionsPurged = purged

	j.retrySecretReleases(ctx, now, &stats)

	if j.identity != nil {
		j.identity.ResetSignInLimiter()
	}
	return stats
}

// retrySecretReleases re-issues upstream deletes for secret references whose
// release was requested but never confirmed.
func (j *Janitor) retrySecretReleases(ctx context.Context, now time.Time, stats *CycleStats) {
	pending, err := j.store.ListPendingSecretReleases(ctx, now)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		log.Warn().Err(err).Msg("pending secret listing failed")
		return
	}

	for _, rec := range pending {
		if err := j.upstream.DeleteSecret(ctx, j.serviceToken, rec.SecretID); err != nil {
			// A secret already gone upstream counts as released.
			if !upstream.IsNotFound(err) {
				stats.SecretsPending++
				log.Warn().Err(err).Str("secret", rec.SecretID).Msg("secret release retry failed")
				continue
			}
		}
		if err := j.store.MarkSecretReleased(ctx, rec.SecretID, now); err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.SecretsReleased++
		log.Info().Str("secret", rec.SecretID).Msg("secret released by janitor")
	}
}
