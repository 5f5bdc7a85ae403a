// Package schedule runs the fixed-interval collect-then-publish loop:
// gather a telemetry document from the system and custom probes, encode
// it to JSON, and hand it to a Publisher as a retained PUBLISH. Grounded
// on data_collector.py's _collection_loop for the tick/measure-then-sleep
// shape, reimplemented with a time.Timer instead of a ticker so a cycle
// that overruns its interval never overlaps the next one.
package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nas-panel/panel-server/internal/applog"
	"github.com/nas-panel/panel-server/internal/probe"
)

const defaultInterval = 5 * time.Second

// Publisher is the delivery target for an encoded document. Both
// internal/broker.Broker and internal/externalbroker.Client implement it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
}

// Config configures a Scheduler.
type Config struct {
	Interval time.Duration
	Topic    string
	QoS      byte
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.Topic == "" {
		c.Topic = "nas/panel/data"
	}
}

// Scheduler runs the collection loop on its own goroutine until Stop is
// called.
type Scheduler struct {
	cfg     Config
	log     *applog.Logger
	system  *probe.System
	probes  []probe.CustomProbe
	pub     Publisher

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Scheduler. system performs the host-level collection;
// probes are the user-configured file/command/env probes; pub is where
// each cycle's document is delivered.
func New(cfg Config, log *applog.Logger, system *probe.System, probes []probe.CustomProbe, pub Publisher) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		cfg:    cfg,
		log:    log,
		system: system,
		probes: probes,
		pub:    pub,
		stopCh: make(chan struct{}),
	}
}

// Start begins the collection loop in the background.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the loop to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		start := time.Now()
		if err := s.runCycle(); err != nil {
			s.log.Warn("collection cycle failed", "error", err)
		}
		elapsed := time.Since(start)

		sleep := s.cfg.Interval - elapsed
		if sleep <= 0 {
			s.log.Warn("collection cycle exceeded interval, continuing immediately",
				"elapsed", elapsed, "interval", s.cfg.Interval)
			sleep = 0
		}
		timer.Reset(sleep)
	}
}

// runCycle runs one collect-then-publish tick. A probe failure never
// aborts the tick (spec.md §8 scenario S6); only a system-collection,
// encode or publish failure is returned.
func (s *Scheduler) runCycle() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Interval)
	defer cancel()

	doc, err := s.system.Collect(ctx)
	if err != nil {
		return fmt.Errorf("schedule: collect: %w", err)
	}
	doc.Custom = probe.CollectCustom(ctx, s.probes)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("schedule: encode document: %w", err)
	}
	payload := bytes.TrimRight(buf.Bytes(), "\n")

	// QoS2 is downgraded to QoS1 on delivery, consistent with the
	// broker's own SUBSCRIBE-time downgrade (spec.md §9 / §4.6 step 3).
	qos := s.cfg.QoS
	if qos == 2 {
		qos = 1
	}

	if err := s.pub.Publish(ctx, s.cfg.Topic, payload, qos, true); err != nil {
		return fmt.Errorf("schedule: publish: %w", err)
	}
	return nil
}
