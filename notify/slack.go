package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"shopfloor/common"
	"shopfloor/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	NotifyFunc = Notify

	ActiveSink *SlackSink
)

// SlackSink posts messages to a Slack incoming webhook. Messages over the rate limit are dropped.
type SlackSink struct {
	WebhookURL string
	limiter    *rate.Limiter
}

type slackMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func NewSlackSink(webhookURL string, ratePerSecond float64) *SlackSink {
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &SlackSink{WebhookURL: webhookURL, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func Bootstrap(c *common.AppConfig) {
	ActiveSink = NewSlackSink(c.SlackWebhookURL, c.NotifyRatePerSecond)
	if c.SlackWebhookURL == "" {
		logrus.Info("SLACK_WEBHOOK_URL is not set, notifications are only logged")
	}
}

// Send delivers one message and reports the failure.
func (s *SlackSink) Send(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(&slackMessage{Channel: channel, Text: message})
	if err != nil {
		return err
	}
	_, err = common.HttpInvokeJson(ctx, http.MethodPost, s.WebhookURL, nil, string(body))
	return err
}

// Notify is fire and forget: undeliverable messages are logged and dropped.
func Notify(ctx context.Context, channel, message string) {
	fields := logrus.Fields{"channel": channel}
	sink := ActiveSink
	if sink == nil || sink.WebhookURL == "" {
		logrus.WithFields(fields).Info("notification: ", message)
		return
	}
	if !sink.limiter.Allow() {
		metrics.NotificationsDropped.Inc()
		logrus.WithFields(fields).Warn("notification rate limit exceeded, message dropped")
		return
	}
	if err := sink.Send(ctx, channel, message); err != nil {
		metrics.NotificationsDropped.Inc()
		logrus.WithFields(fields).WithError(err).Warn("failed to deliver notification")
	}
}
