package mqtt

import (
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/petriage/petriage/core/notify"
	"github.com/petriage/petriage/infra/logger"
)

// Dispatcher mirrors dispatch events onto MQTT topic channels so requester
// and vet clients receive them in real time.
type Dispatcher struct {
	cli paho.Client
	qos byte
	log logger.Logger
}

// NewDispatcher connects to the broker and returns a notify.Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt-publisher")
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Warnf("MQTT connection lost: %v", err) }
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Dispatcher{cli: cli, qos: cfg.QoS, log: log}, nil
}

// Publish marshals the event and publishes it on its topic. Delivery is
// fire-and-forget; failures are logged asynchronously.
func (d *Dispatcher) Publish(e notify.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		d.log.Errorf("encode event %s: %v", e.Type, err)
		return
	}
	token := d.cli.Publish(e.Topic, d.qos, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			d.log.Errorf("publish %s to %s: %v", e.Type, e.Topic, token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (d *Dispatcher) Close() {
	d.cli.Disconnect(250)
}
