package steps

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/hitplan/packages/core/step"
	"go.uber.org/zap"
)

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultWaitInterval = 500 * time.Millisecond
	requestTimeout      = 5 * time.Second
)

// WaitFor polls a URL until it answers with the expected status.
type WaitFor struct {
	base
	URL      string
	Status   int
	Timeout  time.Duration
	Interval time.Duration
	Client   *http.Client
}

func NewWaitFor(name, url string) *WaitFor {
	if name == "" {
		name = "wait for " + url
	}
	return &WaitFor{
		base:     base{name: name},
		URL:      url,
		Status:   http.StatusOK,
		Timeout:  DefaultWaitTimeout,
		Interval: DefaultWaitInterval,
	}
}

func (w *WaitFor) Clone() step.Step {
	c := *w
	return &c
}

func (w *WaitFor) ResolveExpressions(resolve func(string) string) {
	w.URL = resolve(w.URL)
}

func (w *WaitFor) Execute(ctx context.Context, _ step.Context, log *zap.Logger) (bool, error) {
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	log.Debug("waiting for service", zap.String("url", w.URL), zap.Int("status", w.Status),
		zap.Duration("timeout", w.Timeout))

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	var lastErr error
	lastStatus := 0
	for {
		status, err := w.ping(ctx, client)
		if err == nil && status == w.Status {
			log.Debug("service ready", zap.String("url", w.URL))
			return true, nil
		}
		// A request cut short by the deadline says nothing about the service.
		if err == nil || ctx.Err() == nil || (lastErr == nil && lastStatus == 0) {
			lastErr, lastStatus = err, status
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return false, fmt.Errorf("service %s not ready after %v: %v", w.URL, w.Timeout, lastErr)
			}
			return false, fmt.Errorf("service %s not ready after %v: got status %d, expected %d",
				w.URL, w.Timeout, lastStatus, w.Status)
		case <-ticker.C:
		}
	}
}

func (w *WaitFor) ping(ctx context.Context, client *http.Client) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
