// Package push drains the history_push queue, mirroring locally
// recorded sessions to the remote history service in the background.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veibelle/skinmatch/internal/history"
	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
	"github.com/veibelle/skinmatch/internal/storage"
)

// JobStore abstracts the job queue and session lookups.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetSession(id string) (storage.Session, error)
	SetSessionRemoteID(id, remoteID string) error
}

// Pusher writes one session to the remote history service.
// Implemented by history.RemoteClient.
type Pusher interface {
	Push(ctx context.Context, req history.WriteRequest) error
}

// Worker processes history_push jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	remote   Pusher
	identity identity.Provider
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 2s.
func NewWorker(store JobStore, remote Pusher, ids identity.Provider, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		store:    store,
		remote:   remote,
		identity: ids,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("push worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single history_push job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{history.JobTypePush})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("push job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type pushPayload struct {
	SessionID string `json:"session_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload pushPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	id, err := w.identity.Current()
	if errors.Is(err, identity.ErrNoIdentity) {
		// Guest session: nothing to mirror. Completing the job keeps
		// the queue clean; the session stays local.
		w.logger.Debug("skipping push for guest session", "session_id", payload.SessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}

	sess, err := w.store.GetSession(payload.SessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", payload.SessionID, err)
	}
	if sess.RemoteID != "" {
		// Already mirrored, likely by a retried job.
		return nil
	}

	var profile quiz.Profile
	if err := json.Unmarshal([]byte(sess.ProfileJSON), &profile); err != nil {
		return fmt.Errorf("decoding session %s answers: %w", sess.ID, err)
	}
	var results []recommend.Product
	if err := json.Unmarshal([]byte(sess.ResultsJSON), &results); err != nil {
		return fmt.Errorf("decoding session %s results: %w", sess.ID, err)
	}

	req := history.NewWriteRequest(id.Email, id.UserID, profile, results)
	if err := w.remote.Push(ctx, req); err != nil {
		return fmt.Errorf("pushing session %s: %w", sess.ID, err)
	}

	// The write endpoint does not echo an id back; mark the session
	// mirrored with its own id so retries stay idempotent.
	if err := w.store.SetSessionRemoteID(sess.ID, sess.ID); err != nil {
		w.logger.Warn("marking session as mirrored failed", "session_id", sess.ID, "error", err)
	}

	w.logger.Info("session mirrored to history service", "session_id", sess.ID)
	return nil
}
