package ingest

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/biogas-cli/internal/config"
	"github.com/sells-group/biogas-cli/internal/resilience"
)

// Subscriber feeds MQTT messages from one topic into a Handler.
type Subscriber struct {
	cfg       config.MQTTConfig
	handler   *Handler
	newClient func(*mqtt.ClientOptions) mqtt.Client
	backoff   resilience.Backoff

	ctx context.Context
}

// NewSubscriber creates a Subscriber for cfg.Topic.
func NewSubscriber(cfg config.MQTTConfig, h *Handler) *Subscriber {
	b := resilience.DefaultBackoff()
	b.Initial = time.Second
	if cfg.ConnectRetries > 0 {
		b.Attempts = cfg.ConnectRetries
	}
	b.OnRetry = resilience.LogRetry("ingest", "mqtt connect")

	return &Subscriber{
		cfg:       cfg,
		handler:   h,
		newClient: mqtt.NewClient,
		backoff:   b,
	}
}

func (s *Subscriber) timeout() time.Duration {
	if s.cfg.ConnectTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.cfg.ConnectTimeoutSecs) * time.Second
}

func (s *Subscriber) options() *mqtt.ClientOptions {
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = "biogas-ingest"
	}
	// Brokers drop an existing session when a second client reuses its ID.
	clientID += "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(s.timeout())
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		zap.L().Warn("ingest: mqtt connection lost", zap.String("broker", s.cfg.Broker), zap.Error(err))
	})
	return opts
}

// Run connects, subscribes and blocks until ctx is cancelled. The topic is
// resubscribed on every reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	s.ctx = ctx
	client := s.newClient(s.options())

	err := resilience.Do(ctx, s.backoff, func(context.Context) error {
		token := client.Connect()
		if !token.WaitTimeout(s.timeout()) {
			return resilience.Transient(eris.New("ingest: mqtt connect timeout"), 0)
		}
		return token.Error()
	})
	if err != nil {
		return eris.Wrapf(err, "ingest: connect to %s", s.cfg.Broker)
	}

	<-ctx.Done()
	zap.L().Info("ingest: disconnecting from mqtt broker", zap.String("broker", s.cfg.Broker))
	client.Disconnect(250)
	return nil
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	zap.L().Info("ingest: connected to mqtt broker",
		zap.String("broker", s.cfg.Broker),
		zap.String("topic", s.cfg.Topic),
	)
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
	if !token.WaitTimeout(s.timeout()) {
		zap.L().Error("ingest: mqtt subscribe timeout", zap.String("topic", s.cfg.Topic))
		return
	}
	if err := token.Error(); err != nil {
		zap.L().Error("ingest: mqtt subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
	}
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := s.handler.Handle(ctx, "mqtt", msg.Payload())
	if err != nil {
		zap.L().Warn("ingest: mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if res.Reading != nil {
		zap.L().Debug("ingest: reading stored",
			zap.String("stage_id", res.Reading.StageID),
			zap.Int64("id", res.Reading.ID),
			zap.Int("alerts", len(res.Alerts)),
		)
	}
}
