package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/bodydetect/internal/command"
	"github.com/ayusman/bodydetect/internal/event"
)

// Dispatcher executes commands received over MQTT.
// *command.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) command.Response
}

// MQTTOptions configures an MQTT relay.
type MQTTOptions struct {
	Broker   string
	ClientID string
	// Topic is the prefix: events go to <Topic>/<type>, commands are read
	// from <Topic>/commands and answered on <Topic>/responses.
	Topic string
	QoS   byte
	Codec event.Codec
	// Buffer is the number of events queued while the broker is slow.
	Buffer int
	// Commands, if set, receives requests from the commands topic.
	Commands Dispatcher
}

// MQTT publishes events to an MQTT broker and optionally accepts commands.
type MQTT struct {
	opts   MQTTOptions
	client mqtt.Client
	queue  *event.ChanSink
	done   chan struct{}

	mu        sync.Mutex
	published uint64
	errors    uint64
}

// NewMQTT connects to the broker.
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Codec == nil {
		opts.Codec = event.JSONCodec{}
	}

	m := &MQTT{
		opts:  opts,
		queue: event.NewChanSink(opts.Buffer),
		done:  make(chan struct{}),
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(5 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(c mqtt.Client) {
		log.WithField("broker", opts.Broker).Info("MQTT connection established")
		if opts.Commands != nil {
			m.subscribe(c)
		}
	}
	co.OnConnectionLost = func(c mqtt.Client, err error) {
		log.WithError(err).WithField("broker", opts.Broker).Warn("MQTT connection lost, will auto-reconnect")
	}

	m.client = mqtt.NewClient(co)
	token := m.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	go m.loop()
	return m, nil
}

// Send implements event.Sink.
func (m *MQTT) Send(ev event.Event) {
	m.queue.Send(ev)
}

// Stats returns the number of events published and failed.
func (m *MQTT) Stats() (published, errors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.errors
}

// Close drains queued events and disconnects.
func (m *MQTT) Close() error {
	m.queue.Close()
	<-m.done
	m.client.Disconnect(250)
	return nil
}

func (m *MQTT) loop() {
	defer close(m.done)
	for ev := range m.queue.C() {
		payload, err := m.opts.Codec.Encode(ev)
		if err != nil {
			m.countError()
			log.WithError(err).Warn("MQTT relay encode failed")
			continue
		}

		topic := fmt.Sprintf("%s/%s", m.opts.Topic, ev.Type())
		token := m.client.Publish(topic, m.opts.QoS, false, payload)
		if !token.WaitTimeout(2*time.Second) || token.Error() != nil {
			m.countError()
			continue
		}

		m.mu.Lock()
		m.published++
		m.mu.Unlock()
	}
}

func (m *MQTT) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *MQTT) subscribe(c mqtt.Client) {
	topic := m.opts.Topic + "/commands"
	token := c.Subscribe(topic, 1, m.handleCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() == nil {
		log.WithField("topic", topic).Info("Listening for MQTT commands")
		return
	}
	log.WithError(token.Error()).WithField("topic", topic).Error("MQTT command subscription failed")
}

func (m *MQTT) handleCommand(c mqtt.Client, msg mqtt.Message) {
	var req command.Request
	var resp command.Response
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		resp = command.Response{Error: command.BadArgument("request")}
	} else {
		resp = m.opts.Commands.Dispatch(context.Background(), req)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Error("Failed to encode MQTT command response")
		return
	}
	c.Publish(m.opts.Topic+"/responses", 1, false, data)
}
