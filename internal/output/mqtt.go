package output

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/zsiec/cc608/cea608"
)

const mqttPublishTimeout = 5 * time.Second

// Publisher is the subset of mqtt.Client used by MQTTSink.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each snapshot as a JSON record. Snapshots are
// published retained so a new subscriber sees the current caption.
type MQTTSink struct {
	pub    Publisher
	topic  string
	qos    byte
	source string
}

func NewMQTTSink(pub Publisher, topic string, qos byte, source string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, qos: qos, source: source}
}

func (m *MQTTSink) WriteSnapshot(s cea608.Snapshot) error {
	payload, err := json.Marshal(NewRecord(m.source, s))
	if err != nil {
		return fmt.Errorf("output: marshal snapshot: %w", err)
	}
	token := m.pub.Publish(fmt.Sprintf("%s/%d", m.topic, s.Channel), m.qos, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("output: mqtt publish to %s timed out", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("output: mqtt publish: %w", err)
	}
	return nil
}

func (m *MQTTSink) Close() error { return nil }

// DialMQTT connects to broker with automatic reconnects. The client ID
// is derived from a random UUID.
func DialMQTT(broker string, log *slog.Logger) (mqtt.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mqtt", "broker", broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("cc608_" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("output: connecting to mqtt broker: %w", token.Error())
	}
	return client, nil
}
