package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"roomlink/internal/httpclient"
	"roomlink/internal/models"
	"roomlink/pkg/logger"
)

const (
	joinDedupWindow = 1500 * time.Millisecond
	joinEvictAfter  = 2500 * time.Millisecond
)

type JoinOutcome int

const (
	JoinAllowed JoinOutcome = iota
	JoinPending
	JoinDenied
)

func (o JoinOutcome) String() string {
	switch o {
	case JoinAllowed:
		return "allowed"
	case JoinPending:
		return "pending"
	default:
		return "denied"
	}
}

type JoinResult struct {
	Code        string
	Outcome     JoinOutcome
	Status      int
	Message     string
	Room        *models.Room
	Participant *models.Participant
}

// ShouldLeave reports a denial meaning the room does not exist (404) or is
// gone (410); the caller is expected to leave the room view.
func (r JoinResult) ShouldLeave() bool {
	return r.Outcome == JoinDenied && (r.Status == http.StatusNotFound || r.Status == http.StatusGone)
}

// Err returns a *DeniedError for denied results and nil otherwise.
func (r JoinResult) Err() error {
	if r.Outcome != JoinDenied {
		return nil
	}
	return &DeniedError{Code: r.Code, Status: r.Status, Message: r.Message}
}

type joinEntry struct {
	issuedAt   time.Time
	resolvedAt time.Time
	done       chan struct{}
	result     JoinResult
	err        error
}

// JoinGate asks the backend for admission to a room. Requests for the same
// code issued within a short window share one HTTP request.
type JoinGate struct {
	api API
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*joinEntry
}

type JoinGateOption func(*JoinGate)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) JoinGateOption {
	return func(g *JoinGate) { g.now = now }
}

func NewJoinGate(api API, opts ...JoinGateOption) *JoinGate {
	g := &JoinGate{
		api:     api,
		now:     time.Now,
		entries: make(map[string]*joinEntry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RequestJoin returns the admission result for code. A failure to reach the
// backend is returned as an error, never as a denial.
func (g *JoinGate) RequestJoin(ctx context.Context, code string) (JoinResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return JoinResult{}, ErrRoomCodeRequired
	}

	g.mu.Lock()
	now := g.now()
	g.evictLocked(now)

	entry, ok := g.entries[code]
	if ok && now.Sub(entry.issuedAt) < joinDedupWindow {
		logger.Debug("join %s: reusing request issued %v ago", code, now.Sub(entry.issuedAt))
	} else {
		entry = &joinEntry{issuedAt: now, done: make(chan struct{})}
		g.entries[code] = entry
		go g.run(context.WithoutCancel(ctx), code, entry)
	}
	g.mu.Unlock()

	select {
	case <-entry.done:
		return entry.result, entry.err
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

func (g *JoinGate) run(ctx context.Context, code string, entry *joinEntry) {
	result, err := g.requestJoin(ctx, code)

	g.mu.Lock()
	entry.result, entry.err = result, err
	entry.resolvedAt = g.now()
	g.mu.Unlock()
	close(entry.done)
}

func (g *JoinGate) evictLocked(now time.Time) {
	for code, entry := range g.entries {
		if entry.resolvedAt.IsZero() {
			continue
		}
		if now.Sub(entry.resolvedAt) >= joinEvictAfter {
			delete(g.entries, code)
		}
	}
}

func (g *JoinGate) requestJoin(ctx context.Context, code string) (JoinResult, error) {
	resp, err := g.api.Send(ctx, http.MethodPost, roomCodePath(code)+"/join", nil)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join request for %s failed: %w", code, err)
	}

	result := JoinResult{Code: code, Status: resp.Status}
	switch {
	case resp.Status == http.StatusConflict:
		result.Outcome = JoinAllowed

	case resp.OK():
		var body models.JoinRoomResponse
		if err := resp.Decode(&body); err != nil {
			logger.Warn("join %s: %v", code, err)
		}
		result.Message = body.Message
		result.Room = body.Room
		result.Participant = body.Participant
		if body.Message == "pending" {
			result.Outcome = JoinPending
		} else {
			result.Outcome = JoinAllowed
		}

	default:
		result.Outcome = JoinDenied
		result.Message = httpclient.ExtractMessage(resp.Status, resp.Body)
	}

	logger.Info("join %s: %s (%d)", code, result.Outcome, resp.Status)
	return result, nil
}
