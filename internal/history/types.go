// Package history records finished questionnaire sessions locally and
// reconciles them with the remote history service. Local storage is
// the source of truth; the remote copy is best-effort and synced in
// the background.
package history

import (
	"errors"
	"time"

	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
)

// ErrNoSession means no session matches the lookup (no latest session,
// or an unknown id).
var ErrNoSession = errors.New("no such session")

// Entry is one completed session: the frozen answers, the
// recommendations that came back, and where it lives.
type Entry struct {
	SessionID string              `json:"sessionId"`
	Profile   quiz.Profile        `json:"profile"`
	Results   []recommend.Product `json:"results"`
	Timestamp time.Time           `json:"timestamp"`

	// RemoteID is the id the history service assigned, empty while the
	// entry is local-only.
	RemoteID string `json:"remoteId,omitempty"`
}
