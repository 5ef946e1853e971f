// Package authority talks to the remote planner that owns the day's schedule.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second

	userAgent = "pulse-cli"
)

// StatusError is returned for any non-2xx reply. The planner reports failures by
// status code only, so the body is kept verbatim for diagnostics.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	if r := []rune(body); len(r) > 200 {
		body = string(r[:200]) + "…"
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, body)
}

// ErrNoPlanInResponse is returned when a successful reply does not contain a plan.
var ErrNoPlanInResponse = errors.New("no plan in response")

// IsNotFound reports whether err is a 404 from the planner.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type Options struct {
	BaseURL string
	// Token, when set, is sent as a bearer token on every request.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the transport (tests). Token is ignored when set.
	HTTPClient *http.Client
}

type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

type MoveRequest struct {
	TaskID      int    `json:"task_id"`
	FromBlockID string `json:"from_block_id"`
	ToBlockID   string `json:"to_block_id"`
	ToIndex     int    `json:"to_index"`
}

type lockRequest struct {
	BlockID string `json:"block_id"`
	Locked  bool   `json:"locked"`
}

type eventRequest struct {
	Kind   string `json:"kind"`
	TaskID int    `json:"task_id"`
}

type statusPatch struct {
	Status model.TaskStatus `json:"status"`
}

func New(opt Options) (*Client, error) {
	raw := strings.TrimSpace(opt.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http(s): %s", raw)
	}

	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{}
		if tok := strings.TrimSpace(opt.Token); tok != "" {
			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{})
			hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}))
		}
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, http: hc, timeout: timeout}, nil
}

func (c *Client) BaseURL() string { return c.base.String() }

// FetchPlan returns the current plan, or (nil, nil) when the planner has none yet.
func (c *Client) FetchPlan(ctx context.Context) (*model.TodayPlan, error) {
	var out model.TodayPlan
	err := c.do(ctx, "fetch plan", http.MethodGet, "/plan/today", nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := checkPlan("fetch plan", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GeneratePlan(ctx context.Context) (*model.TodayPlan, error) {
	return c.plan(ctx, "generate plan", "/plan/generate", struct{}{})
}

func (c *Client) ReplanPlan(ctx context.Context) (*model.TodayPlan, error) {
	return c.plan(ctx, "replan", "/plan/replan", nil)
}

func (c *Client) MoveTask(ctx context.Context, req MoveRequest) (*model.TodayPlan, error) {
	return c.plan(ctx, "move task", "/plan/move-task", req)
}

func (c *Client) SetBlockLock(ctx context.Context, blockID string, locked bool) (*model.TodayPlan, error) {
	return c.plan(ctx, "set block lock", "/plan/lock", lockRequest{BlockID: blockID, Locked: locked})
}

// PatchTaskStatus updates one task. The response shape is the planner's business;
// it is returned raw.
func (c *Client) PatchTaskStatus(ctx context.Context, taskID int, status model.TaskStatus) (json.RawMessage, error) {
	var out json.RawMessage
	path := "/tasks/" + strconv.Itoa(taskID)
	if err := c.do(ctx, "patch task", http.MethodPatch, path, statusPatch{Status: status}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostEvent sends a day signal (started, done, blocked, ...). Callers treat it as
// best-effort.
func (c *Client) PostEvent(ctx context.Context, kind string, taskID int) error {
	return c.do(ctx, "post event", http.MethodPost, "/events", eventRequest{Kind: kind, TaskID: taskID}, nil)
}

func (c *Client) CreateTask(ctx context.Context, t model.NewTask) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, "create task", http.MethodPost, "/tasks", t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) plan(ctx context.Context, op, path string, body any) (*model.TodayPlan, error) {
	var out model.TodayPlan
	if err := c.do(ctx, op, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if err := checkPlan(op, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// checkPlan rejects a 2xx reply that carried no plan (empty body or an unrelated
// JSON object), so callers never publish an empty schedule in its place.
func checkPlan(op string, p *model.TodayPlan) error {
	if strings.TrimSpace(p.Date) == "" && len(p.Blocks) == 0 {
		return fmt.Errorf("%s: %w", op, ErrNoPlanInResponse)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, Code: resp.StatusCode, Body: string(b)}
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], b...)
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
