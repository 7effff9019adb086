// Package pipeline wires questionnaire completion to the
// recommendation fetch and the history record.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/veibelle/skinmatch/internal/history"
	"github.com/veibelle/skinmatch/internal/query"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
)

// ErrSubmissionInFlight means a submission is already running; the
// caller should not start another until it settles.
var ErrSubmissionInFlight = errors.New("submission already in flight")

// Collector freezes and resets the questionnaire. Implemented by
// quiz.Collector.
type Collector interface {
	Finalize() (quiz.Profile, error)
	Reset() error
}

// Recommender fetches recommendations. Implemented by recommend.Client.
type Recommender interface {
	Fetch(ctx context.Context, params map[string]string) recommend.Outcome
}

// Appender records completed sessions. Implemented by
// history.Reconciler.
type Appender interface {
	Append(e history.Entry) error
}

// Result is what one submission produced.
type Result struct {
	Profile quiz.Profile
	Outcome recommend.Outcome
}

// Submitter runs the submit flow: freeze the answers, query the
// recommendation service, and on success record the session and reset
// the questionnaire. A service failure leaves the questionnaire intact
// so the user can retry without re-answering.
type Submitter struct {
	collector   Collector
	recommender Recommender
	appender    Appender
	topN        int
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewSubmitter creates a Submitter. topN caps the requested result
// count; zero omits the cap.
func NewSubmitter(c Collector, r Recommender, a Appender, topN int) *Submitter {
	return &Submitter{
		collector:   c,
		recommender: r,
		appender:    a,
		topN:        topN,
		logger:      slog.Default(),
	}
}

// Submit runs one submission. Only one may be in flight at a time;
// concurrent calls get ErrSubmissionInFlight. Questionnaire validation
// errors pass through from the collector.
func (s *Submitter) Submit(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Result{}, ErrSubmissionInFlight
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	profile, err := s.collector.Finalize()
	if err != nil {
		return Result{}, err
	}

	outcome := s.recommender.Fetch(ctx, query.Build(profile, s.topN))
	if !outcome.OK() {
		s.logger.Warn("recommendation fetch failed, keeping questionnaire",
			"session_id", profile.SessionID, "error", outcome.Failure.Cause)
		return Result{Profile: profile, Outcome: outcome}, nil
	}

	entry := history.Entry{
		SessionID: profile.SessionID,
		Profile:   profile,
		Results:   outcome.Products,
		Timestamp: profile.CreatedAt,
	}
	if err := s.appender.Append(entry); err != nil {
		// The user has their recommendations; a bad local write must
		// not hide them. Surface it in logs and move on.
		s.logger.Error("recording session failed", "session_id", profile.SessionID, "error", err)
	}

	if err := s.collector.Reset(); err != nil {
		s.logger.Error("resetting questionnaire failed", "error", err)
	}

	return Result{Profile: profile, Outcome: outcome}, nil
}
