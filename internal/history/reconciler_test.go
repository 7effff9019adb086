package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
	"github.com/veibelle/skinmatch/internal/storage"
)

type fakeFetcher struct {
	entries []Entry
	err     error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, email string) ([]Entry, error) {
	f.calls++
	return f.entries, f.err
}

func newTestReconciler(t *testing.T, remote Fetcher) (*Reconciler, *storage.Store, *identity.StoreProvider) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ids := identity.NewStoreProvider(s)
	return NewReconciler(s, remote, ids), s, ids
}

func sampleEntry(id string, ts time.Time) Entry {
	return Entry{
		SessionID: id,
		Profile:   quiz.Profile{SkinType: "Oily Skin", Concerns: []string{"Acne / Blackheads"}},
		Results:   []recommend.Product{{Name: "Gentle Foam", Brand: "VeiBelle", Similarity: 0.9}},
		Timestamp: ts,
	}
}

func TestAppendIdempotent(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})
	ts := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)

	if err := r.Append(sampleEntry("sess-1", ts)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := r.Append(sampleEntry("sess-1", ts)); err != nil {
		t.Fatalf("Append again: %v", err)
	}

	local, err := r.Local(0)
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if len(local) != 1 {
		t.Fatalf("got %d entries after duplicate append, want 1", len(local))
	}
}

func TestAppendQueuesPush(t *testing.T) {
	r, store, _ := newTestReconciler(t, &fakeFetcher{})

	if err := r.Append(sampleEntry("sess-1", time.Now().UTC())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	job, err := store.ClaimNextJob([]string{JobTypePush})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no push job queued")
	}
	if job.PayloadJSON != `{"session_id":"sess-1"}` {
		t.Errorf("payload = %q", job.PayloadJSON)
	}
}

func TestLatest(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})

	if _, err := r.Latest(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Latest on empty store: err = %v, want ErrNoSession", err)
	}

	base := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	r.Append(sampleEntry("sess-1", base))
	r.Append(sampleEntry("sess-2", base.Add(time.Hour)))

	got, err := r.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.SessionID != "sess-2" {
		t.Errorf("latest = %q, want sess-2", got.SessionID)
	}
	if got.Profile.SkinType != "Oily Skin" || len(got.Results) != 1 {
		t.Errorf("latest entry = %+v", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})
	if _, err := r.Get("nope"); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestRemoteRequiresIdentity(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})

	if _, err := r.Remote(context.Background()); !errors.Is(err, identity.ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
}

func TestRemoteDedupeLaterWins(t *testing.T) {
	base := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	older := sampleEntry("", base)
	older.RemoteID = "r-1"
	older.Profile.SkinType = "Dry Skin"
	newer := sampleEntry("", base.Add(time.Hour))
	newer.RemoteID = "r-1"
	newer.Profile.SkinType = "Oily Skin"
	other := sampleEntry("", base.Add(30*time.Minute))
	other.RemoteID = "r-2"

	fetcher := &fakeFetcher{entries: []Entry{older, newer, other}}
	r, _, ids := newTestReconciler(t, fetcher)
	ids.SignIn(identity.Identity{Email: "ada@example.com", UserID: "u1"})

	entries, err := r.Remote(context.Background())
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first, and r-1 resolved to the later copy.
	if entries[0].RemoteID != "r-1" || entries[0].Profile.SkinType != "Oily Skin" {
		t.Errorf("entries[0] = %+v, want later r-1 copy", entries[0])
	}
	if entries[1].RemoteID != "r-2" {
		t.Errorf("entries[1].RemoteID = %q, want r-2", entries[1].RemoteID)
	}
}

func TestRemoteDedupeFetchOrderBreaksTimestampTies(t *testing.T) {
	ts := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	first := sampleEntry("", ts)
	first.RemoteID = "r-1"
	first.Profile.SkinType = "Dry Skin"
	second := sampleEntry("", ts)
	second.RemoteID = "r-1"
	second.Profile.SkinType = "Oily Skin"

	fetcher := &fakeFetcher{entries: []Entry{first, second}}
	r, _, ids := newTestReconciler(t, fetcher)
	ids.SignIn(identity.Identity{Email: "ada@example.com"})

	entries, err := r.Remote(context.Background())
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	// Identical timestamps: the later-fetched copy still wins.
	if entries[0].Profile.SkinType != "Oily Skin" {
		t.Errorf("kept %q, want the later-fetched copy", entries[0].Profile.SkinType)
	}
}

func TestMergedUnion(t *testing.T) {
	base := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)

	remoteOnly := sampleEntry("", base.Add(2*time.Hour))
	remoteOnly.RemoteID = "r-9"
	synced := sampleEntry("", base.Add(time.Hour))
	synced.RemoteID = "r-1"
	fetcher := &fakeFetcher{entries: []Entry{remoteOnly, synced}}

	r, _, ids := newTestReconciler(t, fetcher)
	ids.SignIn(identity.Identity{Email: "ada@example.com"})

	// Two local-only sessions plus one already pushed under r-1.
	r.Append(sampleEntry("sess-local", base))
	r.Append(sampleEntry("sess-unpushed", base.Add(time.Hour)))
	pushed := sampleEntry("sess-pushed", base.Add(time.Hour))
	pushed.RemoteID = "r-1"
	r.Append(pushed)

	merged, err := r.Merged(context.Background())
	if err != nil {
		t.Fatalf("Merged: %v", err)
	}

	// r-9 remote-only, r-1 once (the remote copy), plus the two
	// never-pushed local sessions.
	seenR1 := 0
	for _, e := range merged {
		if e.RemoteID == "r-1" {
			seenR1++
		}
	}
	if seenR1 != 1 {
		t.Errorf("r-1 appears %d times in merge, want 1", seenR1)
	}
	if len(merged) != 4 {
		t.Errorf("got %d merged entries, want 4: %+v", len(merged), merged)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].Timestamp.After(merged[i-1].Timestamp) {
			t.Errorf("merge not newest-first at %d", i)
		}
	}
}

func TestMergedGuestLocalOnly(t *testing.T) {
	fetcher := &fakeFetcher{entries: []Entry{sampleEntry("", time.Now().UTC())}}
	r, _, _ := newTestReconciler(t, fetcher)

	r.Append(sampleEntry("sess-1", time.Now().UTC()))

	merged, err := r.Merged(context.Background())
	if err != nil {
		t.Fatalf("Merged as guest: %v", err)
	}
	if len(merged) != 1 || merged[0].SessionID != "sess-1" {
		t.Errorf("merged = %+v, want local entry only", merged)
	}
}

func TestClear(t *testing.T) {
	r, _, _ := newTestReconciler(t, &fakeFetcher{})
	r.Append(sampleEntry("sess-1", time.Now().UTC()))

	if err := r.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	local, _ := r.Local(0)
	if len(local) != 0 {
		t.Errorf("got %d local entries after clear", len(local))
	}
	if _, err := r.Latest(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Latest after clear: err = %v, want ErrNoSession", err)
	}
}
