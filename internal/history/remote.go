package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
)

// WriteRequest is the body sent when recording a session remotely.
type WriteRequest struct {
	Email           string              `json:"email"`
	UserID          string              `json:"user_id"`
	QuizAnswers     remoteAnswers       `json:"quiz_answers"`
	Recommendations []recommend.Product `json:"recommendations"`
}

type remoteAnswers struct {
	SkinType    string   `json:"skin_type"`
	Concerns    []string `json:"concerns"`
	ProductType string   `json:"product_type"`
	Allergens   []string `json:"allergens"`
	EyeConcerns []string `json:"eye_concerns"`
	Pregnancy   string   `json:"pregnancy"`
}

type fetchResponse struct {
	Status string      `json:"status"`
	Data   []remoteRow `json:"data"`
}

type remoteRow struct {
	// The service has returned both string and numeric ids over time.
	ID              any                 `json:"id"`
	CreatedAt       string              `json:"created_at"`
	QuizAnswers     remoteAnswers       `json:"quiz_answers"`
	Recommendations []recommend.Product `json:"recommendations"`
}

func idString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RemoteClient talks to the history service.
type RemoteClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemoteClient creates a history client for the given base URL.
func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	return &RemoteClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewWriteRequest shapes one completed session into the service's
// write body. Nil slices become empty arrays so the service never sees
// a JSON null.
func NewWriteRequest(email, userID string, p quiz.Profile, results []recommend.Product) WriteRequest {
	if results == nil {
		results = []recommend.Product{}
	}
	return WriteRequest{
		Email:  email,
		UserID: userID,
		QuizAnswers: remoteAnswers{
			SkinType:    p.SkinType,
			Concerns:    orEmpty(p.Concerns),
			ProductType: p.ProductType,
			Allergens:   orEmpty(p.Allergens),
			EyeConcerns: orEmpty(p.EyeConcerns),
			Pregnancy:   string(p.Pregnancy),
		},
		Recommendations: results,
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Push records a session on the history service.
func (c *RemoteClient) Push(ctx context.Context, req WriteRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/history", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building history request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("pushing history entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("history service returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Fetch lists the remote sessions recorded for the given email, newest
// data as the service returns it. Timestamps the service sends in a
// format we cannot parse resolve to the zero time rather than dropping
// the row.
func (c *RemoteClient) Fetch(ctx context.Context, email string) ([]Entry, error) {
	u := fmt.Sprintf("%s/history?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building history request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("history service returned %d: %s", resp.StatusCode, detail)
	}

	var decoded fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding remote history: %w", err)
	}
	if decoded.Status != "success" {
		return nil, fmt.Errorf("history service status %q", decoded.Status)
	}

	entries := make([]Entry, 0, len(decoded.Data))
	for _, row := range decoded.Data {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}

func (r remoteRow) toEntry() Entry {
	ts, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		ts = time.Time{}
	}
	results := r.Recommendations
	if results == nil {
		results = []recommend.Product{}
	}
	return Entry{
		RemoteID:  idString(r.ID),
		Timestamp: ts,
		Profile: quiz.Profile{
			SkinType:    r.QuizAnswers.SkinType,
			Concerns:    orEmpty(r.QuizAnswers.Concerns),
			ProductType: r.QuizAnswers.ProductType,
			Allergens:   orEmpty(r.QuizAnswers.Allergens),
			EyeConcerns: orEmpty(r.QuizAnswers.EyeConcerns),
			Pregnancy:   quiz.Pregnancy(r.QuizAnswers.Pregnancy),
			CreatedAt:   ts,
		},
		Results: results,
	}
}

// IsRunning probes the history service's health endpoint.
func (c *RemoteClient) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
