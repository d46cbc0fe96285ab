package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/onboard/internal/config"
	"github.com/nugget/onboard/internal/onboarding"
)

// ErrNotStarted is returned when publishing before [Publisher.Start]
// has created the connection.
var ErrNotStarted = errors.New("mqtt publisher not started")

// DefaultPublishTimeout bounds a single completion publish.
const DefaultPublishTimeout = 10 * time.Second

// publishClient is the subset of [autopaho.ConnectionManager] the
// publisher uses.
type publishClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection and publishes completion
// events. It implements [onboarding.CompletionNotifier].
type Publisher struct {
	cfg         config.MQTTConfig
	instanceID  string
	provider    string
	completions *DailyCounter
	logger      *slog.Logger

	mu     sync.Mutex
	client publishClient
	cm     *autopaho.ConnectionManager
}

var _ onboarding.CompletionNotifier = (*Publisher)(nil)

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection. provider names the configured LLM provider
// for the info document.
func New(cfg config.MQTTConfig, instanceID, provider string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:         cfg,
		instanceID:  instanceID,
		provider:    provider,
		completions: NewDailyCounter(nil),
		logger:      logger,
	}
}

// Start connects to the MQTT broker and blocks until ctx is cancelled.
// On every (re-)connect it publishes the birth message and the info
// document.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
			p.publishInfo(ctx, cm)
			p.publishCount(ctx, cm, p.completions.Snapshot())
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.client = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop publishes an "offline" availability message and closes the
// connection. ctx bounds both steps.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established
// or ctx expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()
	if cm == nil {
		return ErrNotStarted
	}
	return cm.AwaitConnection(ctx)
}

// NotifyCompleted publishes the completed session's profile.
func (p *Publisher) NotifyCompleted(ctx context.Context, s *onboarding.Session) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return ErrNotStarted
	}

	payload, err := json.Marshal(NewCompletionEvent(s, p.instanceID))
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
	defer cancel()

	topic := p.completedTopic()
	if _, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Info("completion published", "session_id", s.ID, "topic", topic)

	p.publishCount(ctx, client, p.completions.Inc())
	return nil
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + p.cfg.ClientID
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) infoTopic() string {
	return p.baseTopic() + "/info"
}

func (p *Publisher) countTopic() string {
	return p.baseTopic() + "/completions_today"
}

func (p *Publisher) completedTopic() string {
	return p.cfg.TopicPrefix + "/profiles/completed"
}

// --- Retained status messages ---

func (p *Publisher) publishAvailability(ctx context.Context, c publishClient, status string) {
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

func (p *Publisher) publishInfo(ctx context.Context, c publishClient) {
	payload, err := json.Marshal(NewInstanceInfo(p.instanceID, p.cfg.ClientID, p.provider))
	if err != nil {
		p.logger.Error("mqtt marshal info payload", "error", err)
		return
	}
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.infoTopic(),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt info publish failed", "error", err)
	}
}

func (p *Publisher) publishCount(ctx context.Context, c publishClient, n int64) {
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.countTopic(),
		Payload: []byte(strconv.FormatInt(n, 10)),
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt count publish failed", "error", err)
	}
}
