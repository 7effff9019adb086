// Package recommend talks to the recommendation service. Unreachable
// or misbehaving backends are an expected condition, not a fault: Fetch
// reports them inside the Outcome so callers can render a friendly
// message and keep the questionnaire state intact.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FailureMessage is the stable user-facing text shown whenever the
// recommendation service cannot be used. Downstream surfaces match on
// it, so it never varies with the underlying cause.
const FailureMessage = "Failed to fetch recommendations. Is the backend running?"

// Product is one recommended item.
type Product struct {
	Name       string  `json:"name"`
	Brand      string  `json:"brand"`
	Similarity float64 `json:"similarity"`
	Label      string  `json:"Label"`
}

// Failure describes why a fetch produced no usable results. Message is
// the stable user-facing text; Cause carries the diagnostic detail for
// logs only.
type Failure struct {
	Message string
	Cause   error
}

// Outcome is the result of one recommendation fetch. Exactly one of
// the two shapes holds: Failure nil means the service answered (a
// zero-length Products is a legitimate no-matches answer), Failure
// non-nil means the service could not be used.
type Outcome struct {
	Products []Product
	Note     string
	Failure  *Failure
}

// OK reports whether the service produced a usable answer.
func (o Outcome) OK() bool { return o.Failure == nil }

// Client fetches recommendations over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a recommendation client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type recommendResponse struct {
	Results []Product `json:"results"`
	Message string    `json:"message"`
}

func failure(cause error) Outcome {
	return Outcome{Failure: &Failure{Message: FailureMessage, Cause: cause}}
}

// Fetch runs the recommendation query and returns the outcome. It
// never returns a Go error for service trouble; only the outcome shape
// distinguishes success from failure.
func (c *Client) Fetch(ctx context.Context, params map[string]string) Outcome {
	u, err := url.Parse(c.baseURL + "/recommend")
	if err != nil {
		return failure(fmt.Errorf("building request URL: %w", err))
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return failure(fmt.Errorf("building request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(fmt.Errorf("requesting recommendations: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failure(fmt.Errorf("recommendation service returned %d: %s", resp.StatusCode, body))
	}

	var decoded recommendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return failure(fmt.Errorf("decoding recommendation response: %w", err))
	}

	// A response with no results array is a valid zero-matches answer.
	if decoded.Results == nil {
		decoded.Results = []Product{}
	}
	return Outcome{Products: decoded.Results, Note: decoded.Message}
}

// IsRunning probes the service's health endpoint. Used by status
// surfaces to report backend reachability without issuing a query.
func (c *Client) IsRunning(ctx context.Context) bool {
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
