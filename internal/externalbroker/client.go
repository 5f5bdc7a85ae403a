// Package externalbroker implements the mqtt.type=external adapter: it
// forwards telemetry documents to a foreign MQTT broker instead of
// serving them from the embedded broker. Grounded on the original
// mqtt/external_client.py (connect/reconnect shape, callback hooks) and
// on github.com/eclipse/paho.mqtt.golang, the client library real pack
// repos (golang-io-mqtt, JKI757-CatLocator) use for exactly this client
// role. It performs no server-side duties: no accept loop, no routing
// table (spec.md §9).
package externalbroker

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nas-panel/panel-server/internal/applog"
)

// ErrNotConnected is returned by Publish when the client has not yet
// established a connection to the external broker.
var ErrNotConnected = errors.New("externalbroker: not connected")

// Config configures a Client.
type Config struct {
	Host      string
	Port      int
	ClientID  string
	Username  string
	Password  string
	KeepAlive time.Duration
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 1883
	}
	if c.ClientID == "" {
		c.ClientID = "nas-panel-server"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60 * time.Second
	}
}

// Client publishes documents to a foreign MQTT broker. It implements the
// same Publish(ctx, topic, payload, qos, retain) signature the embedded
// broker and the scheduler agree on, so the scheduler is agnostic to
// which transport it is driving.
type Client struct {
	cfg    Config
	log    *applog.Logger
	client mqtt.Client
}

// New builds a Client with paho's AutoReconnect and ConnectRetry enabled,
// mirroring the original's _connection_loop retry behavior. It does not
// connect; Connect does.
func New(cfg Config, log *applog.Logger) *Client {
	cfg.setDefaults()

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c := &Client{cfg: cfg, log: log}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to external broker", "host", cfg.Host, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("lost connection to external broker", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect blocks until a connection is established. With ConnectRetry
// enabled, a failed attempt is retried every 5 seconds rather than
// returned as an error.
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	return token.Error()
}

// Disconnect closes the connection, waiting up to quiesce for
// in-flight publishes to drain.
func (c *Client) Disconnect(quiesce time.Duration) {
	c.client.Disconnect(uint(quiesce.Milliseconds()))
}

// Publish forwards payload to topic on the external broker. qos 2 is
// downgraded to 1 upstream by the scheduler before this is ever called,
// but Publish does not assume that and accepts whatever qos it is given.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retain, payload)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
