package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/comparo/internal/common"
)

func TestConfigFromDefaults(t *testing.T) {
	cfg := ConfigFrom(common.QueueConfig{})

	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.VisibilityTimeout)
	assert.Equal(t, 3, cfg.MaxReceive)
	assert.Equal(t, "comparo_tasks", cfg.QueueName)
}

func TestConfigFromOverrides(t *testing.T) {
	cfg := ConfigFrom(common.QueueConfig{
		PollInterval:      "250ms",
		Concurrency:       8,
		VisibilityTimeout: "30s",
		MaxReceive:        5,
		QueueName:         "custom_tasks",
	})

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.VisibilityTimeout)
	assert.Equal(t, 5, cfg.MaxReceive)
	assert.Equal(t, "custom_tasks", cfg.QueueName)
}

func TestConfigFromMalformedDurations(t *testing.T) {
	cfg := ConfigFrom(common.QueueConfig{
		PollInterval:      "not-a-duration",
		VisibilityTimeout: "-5s",
	})

	assert.Equal(t, 1*time.Second, cfg.PollInterval, "malformed poll interval falls back to default")
	assert.Equal(t, 5*time.Minute, cfg.VisibilityTimeout, "negative visibility timeout falls back to default")
}
