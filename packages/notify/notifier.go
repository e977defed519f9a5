// Package notify posts run summaries to Slack and plain webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/unit"
	"github.com/abdul-hamid-achik/hitplan/packages/output"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when units fail or error
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every unit is healthy
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failures and on the first
	// healthy run after one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name.
func ParseNotifyOn(s string) (NotifyOn, error) {
	on := NotifyOn(s)
	if !slices.Contains([]NotifyOn{NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery}, on) {
		return "", fmt.Errorf("unknown notify policy %q (supported: always, failure, success, recovery)", s)
	}
	return on, nil
}

// MaxListedFailures caps the failed units carried by a summary.
const MaxListedFailures = 10

// RunSummary represents the summary of a run for notifications
type RunSummary struct {
	Plans      int           `json:"plans"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errored    int           `json:"errored"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
	Failures   []FailedUnit  `json:"failures,omitempty"`
	Truncated  int           `json:"truncated,omitempty"`
	IsRecovery bool          `json:"is_recovery,omitempty"`
}

// FailedUnit is one unhealthy leaf unit.
type FailedUnit struct {
	Path    string `json:"path"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Healthy reports whether no unit failed or errored.
func (s *RunSummary) Healthy() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Summarize builds a summary from the leaves recorded by c.
func Summarize(c *output.Collector, plans int) *RunSummary {
	sum := c.Summary()
	s := &RunSummary{
		Plans:    plans,
		Total:    sum.Total,
		Passed:   sum.Passed,
		Failed:   sum.Failed,
		Errored:  sum.Errored,
		Skipped:  sum.Skipped,
		Duration: c.Elapsed(),
	}
	for _, r := range c.Leaves() {
		if r.Status != unit.Failed && r.Status != unit.Errored {
			continue
		}
		if len(s.Failures) == MaxListedFailures {
			s.Truncated++
			continue
		}
		s.Failures = append(s.Failures, FailedUnit{Path: r.Path, Status: r.Status.String(), Message: r.Message})
	}
	return s
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about a run
	Notify(ctx context.Context, summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager applies a NotifyOn policy to a set of notifiers. It remembers the
// outcome of the previous run to detect recoveries, so one Manager should
// serve every run of a watch session.
type Manager struct {
	notifiers   []Notifier
	notifyOn    NotifyOn
	lastHealthy bool
}

func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers:   notifiers,
		notifyOn:    notifyOn,
		lastHealthy: true,
	}
}

// Notify sends summary to every notifier when the policy asks for it. All
// notifiers are tried; the last error is returned.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	healthy := summary.Healthy()
	shouldNotify := false

	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyFailure:
		shouldNotify = !healthy
	case NotifySuccess:
		shouldNotify = healthy
	case NotifyRecovery:
		summary.IsRecovery = !m.lastHealthy && healthy
		shouldNotify = summary.IsRecovery || !healthy
	}
	m.lastHealthy = healthy

	if !shouldNotify {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			lastErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}
	return lastErr
}

// postJSON sends payload to url and accepts any status in ok.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, ok ...int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(ok, resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
