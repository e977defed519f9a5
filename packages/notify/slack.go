package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SlackNotifier sends notifications to Slack via webhook
type SlackNotifier struct {
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	client     *http.Client
}

// SlackOption is a functional option for SlackNotifier
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the Slack channel
func WithSlackChannel(channel string) SlackOption {
	return func(s *SlackNotifier) {
		s.channel = channel
	}
}

// WithSlackClient replaces the HTTP client, which times out after 10s.
func WithSlackClient(c *http.Client) SlackOption {
	return func(s *SlackNotifier) {
		s.client = c
	}
}

func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	s := &SlackNotifier{
		webhookURL: webhookURL,
		username:   "hitplan",
		iconEmoji:  ":test_tube:",
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	TS     int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Notify sends a notification to Slack
func (s *SlackNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color := "good"
	title := ":white_check_mark: All units passed"

	switch {
	case !summary.Healthy():
		color = "danger"
		title = fmt.Sprintf(":x: %d unit(s) failed", summary.Failed+summary.Errored)
	case summary.IsRecovery:
		title = ":tada: Plans recovered"
	}

	fields := []slackField{
		{Title: "Units", Value: fmt.Sprintf("%d in %d plan(s)", summary.Total, summary.Plans), Short: true},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.Passed), Short: true},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.Failed), Short: true},
		{Title: "Errored", Value: fmt.Sprintf("%d", summary.Errored), Short: true},
		{Title: "Skipped", Value: fmt.Sprintf("%d", summary.Skipped), Short: true},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String(), Short: true},
	}

	var text strings.Builder
	if len(summary.Failures) > 0 {
		text.WriteString("*Failed units:*\n")
		for _, f := range summary.Failures {
			fmt.Fprintf(&text, "- `%s` %s", f.Path, strings.ToLower(f.Status))
			if f.Message != "" {
				fmt.Fprintf(&text, ": %s", firstLine(f.Message))
			}
			text.WriteString("\n")
		}
		if summary.Truncated > 0 {
			fmt.Fprintf(&text, "_and %d more_\n", summary.Truncated)
		}
	}

	msg := slackMessage{
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.iconEmoji,
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  title,
			Text:   text.String(),
			Fields: fields,
			Footer: "hitplan",
			TS:     time.Now().Unix(),
		}},
	}
	return postJSON(ctx, s.client, s.webhookURL, msg, http.StatusOK)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
