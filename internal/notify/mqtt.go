package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/monitoring"
)

// connectTimeout bounds the initial broker handshake.
const connectTimeout = 10 * time.Second

// mqttMessage is the wire form of one published alert.
type mqttMessage struct {
	DriverID string    `json:"driverId"`
	Cause    string    `json:"cause"`
	Score    float64   `json:"score"`
	At       time.Time `json:"at"`
}

// MQTTNotifier publishes fired alerts to an MQTT topic per cause:
// <topic>/<cause>, so subscribers can filter a single alert kind with a
// plain topic match. Publishes are fire-and-forget: delivery failures are
// logged, never surfaced to the engine tick path.
type MQTTNotifier struct {
	client   mqtt.Client
	topic    string
	driverID string
}

// NewMQTTNotifier connects to the broker and returns a notifier publishing
// under the topic prefix. The clientID should be unique per daemon instance.
func NewMQTTNotifier(broker, clientID, topic, driverID string) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", broker, err)
	}
	return newNotifierWithClient(client, topic, driverID), nil
}

// newNotifierWithClient wraps an already-connected client. Split out so
// tests can substitute a fake.
func newNotifierWithClient(client mqtt.Client, topic, driverID string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, driverID: driverID}
}

// Notify publishes one alert. It returns before the broker acknowledges;
// the engine calls notifiers from the tick path and must not block on IO.
func (n *MQTTNotifier) Notify(ev engine.AlertEvent) {
	payload, err := json.Marshal(mqttMessage{
		DriverID: n.driverID,
		Cause:    ev.Cause,
		Score:    ev.Score,
		At:       ev.At,
	})
	if err != nil {
		monitoring.Logf("mqtt notify: marshaling alert: %v", err)
		return
	}
	token := n.client.Publish(n.topic+"/"+ev.Cause, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			monitoring.Logf("mqtt notify: publish failed: %v", err)
		}
	}()
}

// Close disconnects from the broker, allowing 250ms for in-flight work.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
