// Package mqttsink adapts the event sink contract (C8) to an MQTT
// broker, grounded on the original's MQTTPublisher (mqtt_client.py) and
// the paho client dependency observed in the retrieved pack.
package mqttsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/config"
	"github.com/media-luna/resonance/internal/logging"
	"github.com/media-luna/resonance/internal/model"
	"go.uber.org/zap"
)

// Sink publishes recognition events to topic_prefix/event/{song_name}.
type Sink struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	retain      bool
}

// New connects to the broker described by cfg and returns a ready Sink.
// It polls the connected flag with a 5 s timeout, matching the original
// MQTTPublisher.connect() behavior.
func New(cfg config.MQTTConfig) (*Sink, error) {
	clientID := fmt.Sprintf("%s%d", cfg.ClientIDPrefix, time.Now().UnixNano())

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(clientID).
		SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second).
		SetAutoReconnect(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logging.Error(err, zap.String("component", "mqttsink"))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, apperr.Wrap(apperr.ErrTimeout, "connecting to mqtt broker")
	}
	if err := token.Error(); err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err.Error())
	}

	return &Sink{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		qos:         cfg.QoS,
		retain:      cfg.Retain,
	}, nil
}

// Emit publishes event as JSON to {topic_prefix}/event/{song_name}.
func (s *Sink) Emit(ctx context.Context, event model.EventRecord) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(err, "marshaling event record")
	}

	topic := fmt.Sprintf("%s/event/%s", s.topicPrefix, event.SongName)
	token := s.client.Publish(topic, s.qos, s.retain, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return apperr.Wrap(apperr.ErrTimeout, "publishing mqtt event")
	}
	return apperr.Wrap(token.Error(), "publishing mqtt event")
}

// PublishRunningStatus publishes a retained status message, mirroring
// publish_running_status from the original MQTTPublisher.
func (s *Sink) PublishRunningStatus(running bool) error {
	status := "stopped"
	if running {
		status = "running"
	}
	token := s.client.Publish(s.topicPrefix+"/status", s.qos, true, status)
	token.Wait()
	return apperr.Wrap(token.Error(), "publishing running status")
}

func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}
