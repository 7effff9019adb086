package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
	"github.com/veibelle/skinmatch/internal/storage"
)

// JobTypePush is the queue type for background remote-history writes.
const JobTypePush = "history_push"

// stateKeyLatest points at the most recently recorded session.
const stateKeyLatest = "session.latest"

// Store is the slice of persistence the reconciler needs.
// Implemented by storage.Store.
type Store interface {
	SaveSession(s storage.Session) error
	GetSession(id string) (storage.Session, error)
	ListSessions(limit int) ([]storage.Session, error)
	DeleteAllSessions() error
	SetState(key, value string) error
	GetState(key string) (string, error)
	RemoveState(key string) error
	EnqueueJob(j storage.Job) error
}

// Fetcher lists remote sessions for an email. Implemented by RemoteClient.
type Fetcher interface {
	Fetch(ctx context.Context, email string) ([]Entry, error)
}

// Reconciler keeps the local session record and merges it with the
// remote one on demand.
type Reconciler struct {
	store    Store
	remote   Fetcher
	identity identity.Provider
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, remote Fetcher, ids identity.Provider) *Reconciler {
	return &Reconciler{store: store, remote: remote, identity: ids, logger: slog.Default()}
}

// Append records a completed session locally, points the latest-session
// marker at it, and queues a background push to the remote service.
// Recording the same session id twice is a no-op for the session row,
// so retried submissions never duplicate history. A queue failure is
// logged but does not fail the append; the session is safe locally.
func (r *Reconciler) Append(e Entry) error {
	profileJSON, err := json.Marshal(e.Profile)
	if err != nil {
		return fmt.Errorf("encoding session answers: %w", err)
	}
	if e.Results == nil {
		e.Results = []recommend.Product{}
	}
	resultsJSON, err := json.Marshal(e.Results)
	if err != nil {
		return fmt.Errorf("encoding session results: %w", err)
	}

	err = r.store.SaveSession(storage.Session{
		ID:          e.SessionID,
		CreatedAt:   e.Timestamp,
		ProfileJSON: string(profileJSON),
		ResultsJSON: string(resultsJSON),
		RemoteID:    e.RemoteID,
	})
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	if err := r.store.SetState(stateKeyLatest, e.SessionID); err != nil {
		return fmt.Errorf("recording latest session: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"session_id": e.SessionID})
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypePush,
		PayloadJSON: string(payload),
	}
	if err := r.store.EnqueueJob(job); err != nil {
		r.logger.Warn("queueing history push failed, session stays local", "session_id", e.SessionID, "error", err)
	}
	return nil
}

func entryFromSession(s storage.Session) (Entry, error) {
	var p quiz.Profile
	if err := json.Unmarshal([]byte(s.ProfileJSON), &p); err != nil {
		return Entry{}, fmt.Errorf("decoding session %s answers: %w", s.ID, err)
	}
	results := []recommend.Product{}
	if s.ResultsJSON != "" {
		if err := json.Unmarshal([]byte(s.ResultsJSON), &results); err != nil {
			return Entry{}, fmt.Errorf("decoding session %s results: %w", s.ID, err)
		}
	}
	return Entry{
		SessionID: s.ID,
		Profile:   p,
		Results:   results,
		Timestamp: s.CreatedAt,
		RemoteID:  s.RemoteID,
	}, nil
}

// Latest returns the most recently recorded session, or ErrNoSession.
func (r *Reconciler) Latest() (Entry, error) {
	id, err := r.store.GetState(stateKeyLatest)
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, ErrNoSession
	}
	if err != nil {
		return Entry{}, fmt.Errorf("loading latest session marker: %w", err)
	}
	return r.Get(id)
}

// Get looks up one local session by id.
func (r *Reconciler) Get(id string) (Entry, error) {
	s, err := r.store.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		return Entry{}, ErrNoSession
	}
	if err != nil {
		return Entry{}, fmt.Errorf("loading session: %w", err)
	}
	return entryFromSession(s)
}

// Local lists locally recorded sessions, newest first.
func (r *Reconciler) Local(limit int) ([]Entry, error) {
	sessions, err := r.store.ListSessions(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	entries := make([]Entry, 0, len(sessions))
	for _, s := range sessions {
		e, err := entryFromSession(s)
		if err != nil {
			r.logger.Warn("skipping undecodable session", "session_id", s.ID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Remote lists the sessions the history service holds for the current
// identity, deduplicated by remote id with the most recent occurrence
// winning. Guests get ErrNoIdentity.
func (r *Reconciler) Remote(ctx context.Context) ([]Entry, error) {
	id, err := r.identity.Current()
	if err != nil {
		return nil, err
	}
	entries, err := r.remote.Fetch(ctx, id.Email)
	if err != nil {
		return nil, err
	}
	return dedupeByRemoteID(entries), nil
}

// dedupeByRemoteID collapses entries sharing a remote id, keeping the
// most recently fetched occurrence, and sorts newest first. Entries
// with no remote id are kept as-is.
func dedupeByRemoteID(entries []Entry) []Entry {
	byID := make(map[string]Entry)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.RemoteID == "" {
			out = append(out, e)
			continue
		}
		byID[e.RemoteID] = e
	}
	for _, e := range byID {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Merged returns the union of local and remote history: both sides are
// loaded concurrently, entries that exist on both (matched on remote
// id) appear once with the remote copy winning, and the result is
// newest first. Guests get their local history only.
func (r *Reconciler) Merged(ctx context.Context) ([]Entry, error) {
	var (
		locals  []Entry
		remotes []Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locals, err = r.Local(0)
		return err
	})
	g.Go(func() error {
		var err error
		remotes, err = r.Remote(gctx)
		if errors.Is(err, identity.ErrNoIdentity) {
			remotes = nil
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(remotes))
	merged := make([]Entry, 0, len(locals)+len(remotes))
	for _, e := range remotes {
		if e.RemoteID != "" {
			seen[e.RemoteID] = true
		}
		merged = append(merged, e)
	}
	for _, e := range locals {
		if e.RemoteID != "" && seen[e.RemoteID] {
			continue
		}
		merged = append(merged, e)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged, nil
}

// Clear wipes the local record and the latest-session marker. Remote
// history is untouched.
func (r *Reconciler) Clear() error {
	if err := r.store.DeleteAllSessions(); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	if err := r.store.RemoveState(stateKeyLatest); err != nil {
		return fmt.Errorf("clearing latest session marker: %w", err)
	}
	return nil
}
