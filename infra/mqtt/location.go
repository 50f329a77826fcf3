package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/petriage/petriage/core/geo"
	"github.com/petriage/petriage/core/geofence"
	"github.com/petriage/petriage/infra/logger"
)

const locationTopicFilter = "petriage/vet/+/location"

// locationPing is the wire format published by vet mobile clients.
type locationPing struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	RequestID string  `json:"request_id,omitempty"`
}

// LocationSubscriber feeds vet location pings from MQTT into the geofencing
// monitor.
type LocationSubscriber struct {
	cli     paho.Client
	monitor *geofence.Monitor
	log     logger.Logger
}

// NewLocationSubscriber connects and subscribes to the vet location topic.
func NewLocationSubscriber(cfg Config, monitor *geofence.Monitor) (*LocationSubscriber, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-location")
	sub := &LocationSubscriber{monitor: monitor, log: log}
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID + "-loc")
	}
	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe(locationTopicFilter, cfg.QoS, sub.onMessage); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	sub.cli = cli
	return sub, nil
}

func (s *LocationSubscriber) onMessage(_ paho.Client, msg paho.Message) {
	vetID := vetIDFromTopic(msg.Topic())
	if vetID == "" {
		return
	}
	var ping locationPing
	if err := json.Unmarshal(msg.Payload(), &ping); err != nil {
		s.log.Warnf("bad location payload on %s: %v", msg.Topic(), err)
		return
	}
	if err := s.monitor.Ping(context.Background(), vetID, geo.Point{Lat: ping.Lat, Lng: ping.Lng}, ping.RequestID); err != nil {
		s.log.Warnf("location ping vet %s: %v", vetID, err)
	}
}

// vetIDFromTopic extracts the vet segment of petriage/vet/<id>/location.
func vetIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "petriage" || parts[1] != "vet" || parts[3] != "location" {
		return ""
	}
	return parts[2]
}

// Close disconnects from the broker.
func (s *LocationSubscriber) Close() {
	s.cli.Disconnect(250)
}
