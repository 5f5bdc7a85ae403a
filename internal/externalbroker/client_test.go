package externalbroker

import (
	"context"
	"testing"
	"time"

	"github.com/nas-panel/panel-server/internal/applog"
	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.setDefaults()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 1883, cfg.Port)
	assert.Equal(t, "nas-panel-server", cfg.ClientID)
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)
}

func TestPublishBeforeConnectReturnsNotConnected(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 18830}, applog.NewVerbose(false))
	err := c.Publish(context.Background(), "nas/panel/data", []byte("{}"), 0, true)
	assert.ErrorIs(t, err, ErrNotConnected)
}
