// Package cron fires config-declared scheduled prompts as synthetic
// inbound messages, so scheduled work flows through the same agent
// loop as user chat.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/config"
)

// Scheduler checks job schedules once a minute and publishes a
// synthetic InboundMessage for each due job. Replies route back to the
// job's channel and chat like any other turn.
type Scheduler struct {
	bus  *bus.MessageBus
	gron *gronx.Gronx
	jobs []config.CronJob
}

// New validates the configured jobs and keeps the usable ones. Invalid
// schedules and incomplete jobs are logged and dropped.
func New(b *bus.MessageBus, jobs []config.CronJob) *Scheduler {
	s := &Scheduler{bus: b, gron: gronx.New()}
	for _, job := range jobs {
		if !s.gron.IsValid(job.Schedule) {
			slog.Warn("invalid cron schedule, job skipped", "job", job.Name, "schedule", job.Schedule)
			continue
		}
		if job.Channel == "" || job.ChatID == "" || job.Prompt == "" {
			slog.Warn("incomplete cron job, skipped", "job", job.Name)
			continue
		}
		s.jobs = append(s.jobs, job)
	}
	return s
}

// JobCount returns the number of jobs that passed validation.
func (s *Scheduler) JobCount() int { return len(s.jobs) }

// Run ticks once a minute until the context is canceled. Returns
// immediately when no jobs are configured.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	slog.Info("cron scheduler started", "jobs", len(s.jobs))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.check(now)
		}
	}
}

// check publishes a synthetic message for every job due at now and
// returns how many fired.
func (s *Scheduler) check(now time.Time) int {
	fired := 0
	for _, job := range s.jobs {
		due, err := s.gron.IsDue(job.Schedule, now)
		if err != nil {
			slog.Warn("cron schedule check failed", "job", job.Name, "error", err)
			continue
		}
		if !due {
			continue
		}

		slog.Info("cron job fired", "job", job.Name, "channel", job.Channel, "chat_id", job.ChatID)
		s.bus.PublishInbound(bus.InboundMessage{
			Channel:   job.Channel,
			ChatID:    job.ChatID,
			UserID:    "cron",
			Content:   job.Prompt,
			Metadata:  map[string]string{"source": "cron", "job": job.Name},
			Timestamp: now,
		})
		fired++
	}
	return fired
}
