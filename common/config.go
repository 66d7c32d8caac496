package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultServiceName = "shopfloor"

// AppConfig holds the settings of the collaborators around the workflow engine.
type AppConfig struct {
	Port      string
	LogLevel  string
	LogFormat string

	SlackWebhookURL     string
	NotifyRatePerSecond float64

	ElasticsearchAddresses []string

	OSSEndpoint  string
	OSSAccessKey string
	OSSSecretKey string
	OSSBucket    string

	AutomationTimeout            time.Duration
	AutomationObserveTransitions bool
}

func ParseAppConfigFromEnv() *AppConfig {
	c := &AppConfig{
		Port:      envOrDefault("PORT", "80"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "text"),

		SlackWebhookURL:     os.Getenv("SLACK_WEBHOOK_URL"),
		NotifyRatePerSecond: 1,

		OSSEndpoint:  os.ExpandEnv(os.Getenv("OSS_ENDPOINT")),
		OSSAccessKey: os.Getenv("OSS_ACCESS_KEY"),
		OSSSecretKey: os.Getenv("OSS_SECRET_KEY"),
		OSSBucket:    envOrDefault("OSS_BUCKET", defaultServiceName),

		AutomationTimeout: 30 * time.Second,
	}

	if v, err := strconv.ParseFloat(os.Getenv("NOTIFY_RATE_PER_SECOND"), 64); err == nil && v > 0 {
		c.NotifyRatePerSecond = v
	}
	if v := os.Getenv("ELASTICSEARCH_ADDRESSES"); v != "" {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				c.ElasticsearchAddresses = append(c.ElasticsearchAddresses, addr)
			}
		}
	}
	if d, err := time.ParseDuration(os.Getenv("AUTOMATION_TIMEOUT")); err == nil && d > 0 {
		c.AutomationTimeout = d
	}
	if b, err := strconv.ParseBool(os.Getenv("AUTOMATION_OBSERVE_TRANSITIONS")); err == nil {
		c.AutomationObserveTransitions = b
	}
	return c
}

func GetServiceName() string {
	return envOrDefault("SERVICE_NAME", defaultServiceName)
}

func GetServiceInstance() string {
	if v := os.Getenv("SERVICE_INSTANCE"); v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
