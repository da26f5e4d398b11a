// Package sync implements the sync engine from spec.md §4.10: a queue
// processor that applies MyList operations pulled from the persistent
// sync_queue (spec.md §6.3), retrying transient failures with backoff
// and dead-lettering entries that exhaust their retry budget.
// Grounded on
// _examples/original_source/anidb_cli/src/orchestrators/sync_orchestrator.rs's
// queue-draining loop shape and dead-letter policy (a Failed entry with
// retry_count >= max_retries is reported, never silently re-queued).
package sync

import (
	"context"
	"sort"
	"time"

	"github.com/anidbgo/anidbclient/cache"
	"github.com/anidbgo/anidbclient/internal/sync/syncentry"
	"github.com/anidbgo/anidbclient/protocol/codec"
	"github.com/anidbgo/anidbclient/protocol/message"
	"github.com/anidbgo/anidbclient/protocol/perr"
	"github.com/anidbgo/anidbclient/protocol/query"
	"github.com/sirupsen/logrus"
)

// Config configures an Engine's retry/backoff policy (spec.md §4.10's
// "backoff base_delay × 2^retry_count").
type Config struct {
	// Limit caps how many ready entries one ProcessOnce pass handles.
	Limit int
	// BaseDelay is the backoff unit multiplied by 2^retry_count.
	BaseDelay time.Duration
	Logger    *logrus.Entry
}

// DefaultConfig returns a 100-item pass with a 30s backoff base, the
// anidb_cli orchestrator's own default limit.
func DefaultConfig() Config {
	return Config{
		Limit:     100,
		BaseDelay: 30 * time.Second,
		Logger:    logrus.WithField("component", "sync"),
	}
}

// Summary reports one ProcessOnce pass's outcome (spec.md §4.10 and
// the orchestrator's "reported, not silently dropped" dead-letter note).
type Summary struct {
	Processed    int
	Completed    int
	Retried      int
	DeadLettered int
}

// Engine drains the sync_queue repository and applies each ready entry
// via a query.QueryManager (spec.md §4.10).
type Engine struct {
	repo cache.SyncQueueRepository
	qm   *query.QueryManager
	cfg  Config
}

// New builds an Engine. cfg.Limit/BaseDelay fall back to DefaultConfig
// when zero.
func New(repo cache.SyncQueueRepository, qm *query.QueryManager, cfg Config) *Engine {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	return &Engine{repo: repo, qm: qm, cfg: cfg}
}

// ProcessOnce runs one pass over ready entries (spec.md §4.10
// "Processing loop"): ordered by priority then scheduled_at, each
// marked InProgress, applied, and resolved to Completed, rescheduled,
// or dead-lettered.
func (e *Engine) ProcessOnce(ctx context.Context) (Summary, error) {
	entries, err := e.repo.FindReady(ctx, e.cfg.Limit)
	if err != nil {
		return Summary{}, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].ScheduledAt.Before(entries[j].ScheduledAt)
	})

	var summary Summary
	for _, entry := range entries {
		summary.Processed++
		e.processEntry(ctx, entry, &summary)
	}
	return summary, nil
}

func (e *Engine) processEntry(ctx context.Context, entry syncentry.Entry, summary *Summary) {
	log := e.cfg.Logger.WithFields(logrus.Fields{"id": entry.ID, "fid": entry.FileID, "op": entry.Operation})

	if err := e.repo.UpdateStatus(ctx, entry.ID, syncentry.StatusInProgress, ""); err != nil {
		log.WithError(err).Error("sync: failed to mark in-progress")
		return
	}

	outcome, err := e.apply(ctx, entry)
	switch {
	case err == nil && outcome == message.OutcomeSuccess:
		log.Debug("sync: entry completed")
		summary.Completed++
		_ = e.repo.UpdateStatus(ctx, entry.ID, syncentry.StatusCompleted, "")

	case outcome == message.OutcomeTransient || outcome == message.OutcomeSessionInvalid:
		e.reschedule(ctx, entry, err, log, summary)

	default:
		log.WithError(err).Warn("sync: entry failed permanently")
		_ = e.repo.UpdateStatus(ctx, entry.ID, syncentry.StatusFailed, errString(err))
		summary.DeadLettered++
	}
}

func (e *Engine) reschedule(ctx context.Context, entry syncentry.Entry, err error, log *logrus.Entry, summary *Summary) {
	nextRetry := entry.RetryCount + 1
	if nextRetry >= entry.MaxRetries {
		log.WithError(err).Warn("sync: retry budget exhausted, dead-lettering")
		_ = e.repo.UpdateStatus(ctx, entry.ID, syncentry.StatusFailed, errString(err))
		summary.DeadLettered++
		return
	}
	delay := e.cfg.BaseDelay * time.Duration(uint64(1)<<uint(nextRetry))
	log.WithFields(logrus.Fields{"retry": nextRetry, "delay": delay}).Warn("sync: transient failure, rescheduling")
	if rerr := e.repo.BatchRetry(ctx, []string{entry.ID}, delay); rerr != nil {
		log.WithError(rerr).Error("sync: failed to reschedule")
		return
	}
	summary.Retried++
}

// apply sends the entry's MYLISTADD or MYLISTDEL command and returns
// its classified outcome (spec.md §4.10: "on 210/211/311 mark
// Completed; on 310 mark already in list as success").
func (e *Engine) apply(ctx context.Context, entry syncentry.Entry) (message.Outcome, error) {
	switch entry.Operation {
	case syncentry.OpDelete:
		resp, err := e.qm.SendAuthenticated(ctx, func(session string) *codec.Command {
			return message.NewMyListDel(session, entry.LID)
		})
		if err != nil {
			return classifyErr(err), err
		}
		return message.ParseMyListDel(resp)

	default:
		q := message.ByHash(entry.Size, entry.ED2K)
		if entry.FileID != 0 {
			q = message.ByID(entry.FileID)
		}
		resp, err := e.qm.SendAuthenticated(ctx, func(session string) *codec.Command {
			return message.NewMyListAdd(session, q, message.MyListAddOptions{Edit: entry.RetryCount > 0})
		})
		if err != nil {
			return classifyErr(err), err
		}
		_, outcome, parseErr := message.ParseMyListAdd(resp)
		return outcome, parseErr
	}
}

func classifyErr(err error) message.Outcome {
	if err == perr.ErrSessionExpired {
		return message.OutcomeSessionInvalid
	}
	if svrErr, ok := err.(*perr.ServerError); ok && perr.Retriable(svrErr.Code) {
		return message.OutcomeTransient
	}
	return message.OutcomeFatal
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
