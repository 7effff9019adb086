package recommend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recommend" {
			t.Errorf("path = %q, want /recommend", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"name":"Gentle Foam","brand":"VeiBelle","similarity":0.91,"Label":"cleanser"}],"message":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	out := c.Fetch(context.Background(), map[string]string{
		"skin_type":    "Oily Skin",
		"product_type": "Cleanser",
		"concerns":     "acne",
	})

	if !out.OK() {
		t.Fatalf("outcome failed: %+v", out.Failure)
	}
	if len(out.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(out.Products))
	}
	p := out.Products[0]
	if p.Name != "Gentle Foam" || p.Brand != "VeiBelle" || p.Similarity != 0.91 || p.Label != "cleanser" {
		t.Errorf("product = %+v", p)
	}
	if gotQuery["skin_type"][0] != "Oily Skin" || gotQuery["concerns"][0] != "acne" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestFetchZeroMatchesIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[],"message":"No products matched your filters."}`))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), nil)
	if !out.OK() {
		t.Fatalf("zero matches treated as failure: %+v", out.Failure)
	}
	if len(out.Products) != 0 {
		t.Errorf("got %d products, want 0", len(out.Products))
	}
	if out.Note != "No products matched your filters." {
		t.Errorf("note = %q", out.Note)
	}
}

func TestFetchMissingResultsField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"nothing here"}`))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), nil)
	if !out.OK() {
		t.Fatalf("missing results field treated as failure: %+v", out.Failure)
	}
	if out.Products == nil {
		t.Error("Products is nil, want empty slice")
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	out := NewClient(srv.URL, time.Second).Fetch(context.Background(), nil)
	if out.OK() {
		t.Fatal("connection refused reported as success")
	}
	if out.Failure.Message != FailureMessage {
		t.Errorf("message = %q, want %q", out.Failure.Message, FailureMessage)
	}
	if out.Failure.Cause == nil {
		t.Error("Cause not recorded")
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), nil)
	if out.OK() {
		t.Fatal("500 reported as success")
	}
	if out.Failure.Message != FailureMessage {
		t.Errorf("message = %q, want stable failure message", out.Failure.Message)
	}
}

func TestFetchMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [`))
	}))
	defer srv.Close()

	out := NewClient(srv.URL, 5*time.Second).Fetch(context.Background(), nil)
	if out.OK() {
		t.Fatal("malformed JSON reported as success")
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	out := NewClient(srv.URL, 20*time.Millisecond).Fetch(context.Background(), nil)
	if out.OK() {
		t.Fatal("timeout reported as success")
	}
	if out.Failure.Message != FailureMessage {
		t.Errorf("message = %q, want stable failure message", out.Failure.Message)
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning = false for healthy service")
	}

	srv.Close()
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning = true for stopped service")
	}
}
