// Package publish republishes decoded readings to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/gatt"
	"github.com/srg/fitlink/internal/groutine"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	DefaultTopicPrefix    = "fitness"
	DefaultQueueSize      = 64
	DefaultPublishTimeout = 5 * time.Second

	MetricHeartRate = "heart_rate"
	MetricSteps     = "steps"
)

// Encoding selects the payload format.
type Encoding string

const (
	EncodingJSON  Encoding = "json"
	EncodingProto Encoding = "proto" // google.protobuf.Struct
)

// ParseEncoding accepts "json" and "proto". "" is JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(s)); e {
	case "":
		return EncodingJSON, nil
	case EncodingJSON, EncodingProto:
		return e, nil
	default:
		return "", fmt.Errorf("unknown payload encoding %q", s)
	}
}

// Broker is the part of mqtt.Client the publisher needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// BrokerConfig holds MQTT connection settings.
type BrokerConfig struct {
	URL      string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker with auto-reconnect enabled.
func Connect(cfg BrokerConfig, logger *logrus.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.WithField("broker", cfg.URL).Info("MQTT client connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithFields(logrus.Fields{
			"broker": cfg.URL,
			"error":  err,
		}).Warn("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.URL, token.Error())
	}
	return client, nil
}

// Options configures a Publisher.
type Options struct {
	TopicPrefix    string
	Encoding       Encoding
	QoS            byte
	QueueSize      int
	PublishTimeout time.Duration
	Logger         *logrus.Logger
}

// Message is one reading ready to be sent.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher implements telemetry.Sink. Readings are queued and published
// from a single goroutine so notification handlers never block on the
// broker. A full queue drops the reading.
type Publisher struct {
	broker Broker
	opts   Options
	logger *logrus.Logger

	queue     chan Message
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a publisher and starts its worker. Stop it with Close.
func New(ctx context.Context, broker Broker, opts Options) *Publisher {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingJSON
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	p := &Publisher{
		broker:  broker,
		opts:    opts,
		logger:  opts.Logger,
		queue:   make(chan Message, opts.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	groutine.Go(ctx, "mqtt-publisher", p.loop)
	return p
}

// Topic returns "<prefix>/<device_id>/<metric>".
func (p *Publisher) Topic(deviceID, metric string) string {
	return Topic(p.opts.TopicPrefix, deviceID, metric)
}

// Topic builds a topic with MQTT wildcard and level characters in the
// device id replaced.
func Topic(prefix, deviceID, metric string) string {
	id := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(deviceID)
	if id == "" {
		id = "unknown"
	}
	return prefix + "/" + id + "/" + metric
}

func (p *Publisher) PublishHeartRate(id device.Identity, r gatt.HeartRateReading) {
	p.enqueue(id, MetricHeartRate, float64(r.BPM), string(r.Source), r.ReceivedAt)
}

func (p *Publisher) PublishSteps(id device.Identity, r gatt.StepReading) {
	p.enqueue(id, MetricSteps, float64(r.Count), string(r.Source), r.ReceivedAt)
}

// Encode builds the payload for one reading.
func Encode(enc Encoding, id device.Identity, metric string, value float64, source string, at time.Time) ([]byte, error) {
	fields := map[string]interface{}{
		"device_id":   id.ID,
		"device_name": id.DisplayName(),
		"metric":      metric,
		"value":       value,
		"source":      source,
		"timestamp":   at.UTC().Format(time.RFC3339Nano),
	}

	switch enc {
	case EncodingProto:
		s, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to build struct payload: %w", err)
		}
		return proto.Marshal(s)
	default:
		return json.Marshal(fields)
	}
}

func (p *Publisher) enqueue(id device.Identity, metric string, value float64, source string, at time.Time) {
	payload, err := Encode(p.opts.Encoding, id, metric, value, source, at)
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to encode reading")
		return
	}
	msg := Message{Topic: p.Topic(id.ID, metric), Payload: payload}

	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.WithField("topic", msg.Topic).Warn("Publish queue full, reading dropped")
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer close(p.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			p.drain()
			return
		case msg := <-p.queue:
			p.send(msg)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			p.send(msg)
		default:
			return
		}
	}
}

func (p *Publisher) send(msg Message) {
	token := p.broker.Publish(msg.Topic, p.opts.QoS, false, msg.Payload)
	if !token.WaitTimeout(p.opts.PublishTimeout) {
		p.logger.WithField("topic", msg.Topic).Warn("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		p.logger.WithFields(logrus.Fields{
			"topic": msg.Topic,
			"error": err,
		}).Error("MQTT publish failed")
		return
	}
	p.logger.WithField("topic", msg.Topic).Trace("Published reading")
}

// Close flushes queued readings and disconnects from the broker.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.stopped
		p.broker.Disconnect(250)
		p.logger.Debug("MQTT publisher closed")
	})
}
