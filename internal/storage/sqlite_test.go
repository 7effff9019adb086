package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetState("quiz.step", "3"); err != nil {
		t.Fatalf("SetState: %v", err)
	}

	v, err := s.GetState("quiz.step")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if v != "3" {
		t.Errorf("value = %q, want %q", v, "3")
	}

	// Overwrite.
	if err := s.SetState("quiz.step", "4"); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	v, _ = s.GetState("quiz.step")
	if v != "4" {
		t.Errorf("value after overwrite = %q, want %q", v, "4")
	}
}

func TestGetStateMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetState("no.such.key")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveState(t *testing.T) {
	s := openTestStore(t)

	s.SetState("identity.email", "ada@example.com")
	if err := s.RemoveState("identity.email"); err != nil {
		t.Fatalf("RemoveState: %v", err)
	}
	if _, err := s.GetState("identity.email"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err after remove = %v, want ErrNotFound", err)
	}

	// Removing an absent key is fine.
	if err := s.RemoveState("identity.email"); err != nil {
		t.Errorf("RemoveState absent key: %v", err)
	}
}

func TestSaveSessionIdempotent(t *testing.T) {
	s := openTestStore(t)

	sess := Session{
		ID:          "sess-1",
		CreatedAt:   time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC),
		ProfileJSON: `{"skinType":"Oily Skin"}`,
		ResultsJSON: `[]`,
	}
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Same id again: must not duplicate and must keep the original row.
	dup := sess
	dup.ProfileJSON = `{"skinType":"Dry Skin"}`
	if err := s.SaveSession(dup); err != nil {
		t.Fatalf("SaveSession duplicate: %v", err)
	}

	n, err := s.CountSessions()
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d sessions, want 1", n)
	}

	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ProfileJSON != sess.ProfileJSON {
		t.Errorf("profile_json = %q, want original %q", got.ProfileJSON, sess.ProfileJSON)
	}

	ok, err := s.HasSession("sess-1")
	if err != nil || !ok {
		t.Errorf("HasSession(sess-1) = %v, %v, want true", ok, err)
	}
	ok, err = s.HasSession("sess-2")
	if err != nil || ok {
		t.Errorf("HasSession(sess-2) = %v, %v, want false", ok, err)
	}
}

func TestSetSessionRemoteID(t *testing.T) {
	s := openTestStore(t)

	s.SaveSession(Session{ID: "sess-1", CreatedAt: time.Now().UTC(), ProfileJSON: "{}", ResultsJSON: "[]"})

	if err := s.SetSessionRemoteID("sess-1", "r-1"); err != nil {
		t.Fatalf("SetSessionRemoteID: %v", err)
	}
	got, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.RemoteID != "r-1" {
		t.Errorf("remote_id = %q, want %q", got.RemoteID, "r-1")
	}

	if err := s.SetSessionRemoteID("nope", "r-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveSession(Session{
			ID:          id,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			ProfileJSON: "{}",
			ResultsJSON: "[]",
		})
		if err != nil {
			t.Fatalf("SaveSession %s: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(10)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
	want := []string{"c", "b", "a"}
	for i, w := range want {
		if sessions[i].ID != w {
			t.Errorf("sessions[%d].ID = %q, want %q", i, sessions[i].ID, w)
		}
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "history_push", PayloadJSON: `{"session_id":"sess-1"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"history_push"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil {
		t.Fatal("claimed = nil, want job")
	}
	if claimed.ID != "job-1" || claimed.Status != "running" {
		t.Errorf("claimed = %+v, want id job-1 running", claimed)
	}

	// A running job cannot be claimed again.
	again, err := s.ClaimNextJob([]string{"history_push"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if again != nil {
		t.Errorf("second claim = %+v, want nil", again)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
}

func TestFailJobBackoff(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-1", Type: "history_push", PayloadJSON: "{}", MaxAttempts: 3}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"history_push"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	if err := s.FailJob("job-1", "remote unreachable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Job is pending again but with run_after in the future; an
	// immediate claim must find nothing.
	claimed, err := s.ClaimNextJob([]string{"history_push"})
	if err != nil {
		t.Fatalf("ClaimNextJob after fail: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed backed-off job immediately: %+v", claimed)
	}
}

func TestFailJobExhaustsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "job-1", Type: "history_push", PayloadJSON: "{}", MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"history_push"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("job-1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Attempts exhausted: job is terminally failed, never re-claimed.
	claimed, err := s.ClaimNextJob([]string{"history_push"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed terminally failed job: %+v", claimed)
	}
}

func TestDeleteAllSessions(t *testing.T) {
	s := openTestStore(t)

	s.SaveSession(Session{ID: "a", CreatedAt: time.Now().UTC(), ProfileJSON: "{}", ResultsJSON: "[]"})
	s.SaveSession(Session{ID: "b", CreatedAt: time.Now().UTC(), ProfileJSON: "{}", ResultsJSON: "[]"})

	if err := s.DeleteAllSessions(); err != nil {
		t.Fatalf("DeleteAllSessions: %v", err)
	}
	n, _ := s.CountSessions()
	if n != 0 {
		t.Errorf("got %d sessions after delete, want 0", n)
	}
}
