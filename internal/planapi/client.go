// Package planapi is the HTTP client of the workout plan generation endpoint.
package planapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// GeneratePath is the plan generation route of the fitness backend.
	GeneratePath = "/api/workouts/generate"

	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout bounds one plan request.
	DefaultTimeout = 60 * time.Second

	// RequestIDHeader carries a per-call correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// ErrPlanRequestFailed is matched by every plan request failure.
var ErrPlanRequestFailed = errors.New("plan request failed")

// GenerateRequest is the plan generation payload. Nil metrics are sent as null.
type GenerateRequest struct {
	Age           int     `json:"age"`
	Gender        string  `json:"gender"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
	FitnessLevel  string  `json:"fitness_level"`
	FitnessGoal   string  `json:"fitness_goal"`
	HeartRateRest *uint16 `json:"heart_rate_rest"`
	Steps         *uint32 `json:"steps"`
	Device        *string `json:"device"`
}

// GenerateResponse is the backend reply. Either field may be absent.
type GenerateResponse struct {
	Plan    json.RawMessage `json:"plan,omitempty"`
	Message string          `json:"message,omitempty"`
}

// HasPlan reports whether the response carries a plan object.
func (r *GenerateResponse) HasPlan() bool {
	if r == nil {
		return false
	}
	p := strings.TrimSpace(string(r.Plan))
	return p != "" && p != "null" && p != "false" && p != `""`
}

// PlanError describes a failed plan request.
type PlanError struct {
	StatusCode int    // 0 for transport failures
	Detail     string // backend supplied detail, if any
	Err        error
}

func (e *PlanError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("status %d", e.StatusCode)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return ErrPlanRequestFailed.Error()
	}
}

func (e *PlanError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrPlanRequestFailed).
func (e *PlanError) Is(target error) bool {
	return target == ErrPlanRequestFailed
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string // sent as a bearer token when set
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client calls the plan generation endpoint.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *logrus.Logger
}

// New creates a plan client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
}

// GeneratePlan sends one plan generation request. It is never retried.
func (c *Client) GeneratePlan(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &PlanError{Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return nil, &PlanError{Err: err}
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"url":        httpReq.URL.String(),
	})
	log.Debug("Sending plan generation request")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.WithField("error", err).Error("Plan request failed")
		return nil, &PlanError{Err: err}
	}
	defer resp.Body.Close()

	log = log.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(started).Round(time.Millisecond),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := &PlanError{StatusCode: resp.StatusCode, Detail: errorDetail(raw)}
		log.WithField("detail", perr.Detail).Warn("Plan endpoint rejected request")
		return nil, perr
	}

	out := &GenerateResponse{}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return nil, &PlanError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	log.WithField("has_plan", out.HasPlan()).Info("Plan generation request completed")
	return out, nil
}

// errorDetail extracts the "detail" field of an error body, falling back to
// the trimmed body text.
func errorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return s
		}
		return string(body.Detail)
	}
	return strings.TrimSpace(string(raw))
}
