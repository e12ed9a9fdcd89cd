package titles

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/parleybot/parley/internal/channels"
	"github.com/parleybot/parley/internal/logging"
)

// Sweeper periodically re-drives retry_after entries whose cooldown elapsed.
// Attempts go through the engine, so all eligibility and dedup rules apply.
type Sweeper struct {
	engine *Engine
	store  StateStore
	cron   *cron.Cron
	spec   string
}

// NewSweeper creates a sweeper on the given cron spec (e.g. "@every 1m")
func NewSweeper(engine *Engine, store StateStore, spec string) *Sweeper {
	return &Sweeper{
		engine: engine,
		store:  store,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start schedules the sweep job. No-op when the spec is empty.
func (s *Sweeper) Start() error {
	if s.spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// sweep retries every due entry once
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	due, err := s.store.ListDueRetries(ctx, s.engine.now().UnixMilli())
	if err != nil {
		logging.Warnf("titles: sweep listing failed: %v", err)
		return
	}
	for _, d := range due {
		target, ok := targetFromThreadKey(d.ThreadKey)
		if !ok {
			continue
		}
		outcome := s.engine.Apply(ctx, Request{
			SessionID: d.SessionID,
			Target:    target,
			Primary:   d.State.LastProposedTitle,
			FromSweep: true,
		})
		logging.Debugf("titles: sweep %s -> %s %s", d.ThreadKey, outcome.Result, outcome.Reason)
	}
}

// targetFromThreadKey rebuilds a target from the generic key layout
// "{channel}:{conversation}:{thread}". Keys with a platform-specific layout
// that does not split into three parts are skipped.
func targetFromThreadKey(key string) (channels.TitleTarget, bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return channels.TitleTarget{}, false
	}
	return channels.TitleTarget{
		Channel:        parts[0],
		ConversationID: parts[1],
		ThreadID:       parts[2],
	}, true
}
