package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/land-detector/internal/detector"
)

const (
	// DefaultBufferSize is how many messages are kept while disconnected.
	DefaultBufferSize = 256

	connectWait    = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Publishing never waits
// for the broker: while the connection is down messages are buffered and
// replayed in order on reconnect.
type RealPublisher struct {
	client client
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	buf           *ringBuffer
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. It waits briefly
// for the first connection; if the broker is not up yet, connection attempts
// continue in the background.
func NewRealPublisher(broker, clientID string, logger *slog.Logger) (*RealPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RealPublisher{
		logger: logger,
		now:    time.Now,
		buf:    newRingBuffer(DefaultBufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if token.WaitTimeout(connectWait) {
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	} else {
		logger.Warn("mqtt broker not reachable yet, buffering", "broker", broker)
	}

	return p, nil
}

// PublishLanded sends a detector output to the MQTT broker.
func (p *RealPublisher) PublishLanded(out detector.Output) error {
	payload, err := FormatPayload(out)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0, retained so late subscribers see the current state
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 0, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// PublishSystemSync sends a system event and waits for the broker, for use
// at shutdown when there is no later chance to deliver it.
func (p *RealPublisher) PublishSystemSync(event SystemEvent, timeout time.Duration) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish system: not connected")
	}
	token := p.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buf.push(msg) && p.buf.dropped == 1 {
			p.logger.Warn("mqtt buffer full, dropping oldest", "capacity", len(p.buf.buf))
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.send(msg)
	return nil
}

// send hands msg to paho and reports failures asynchronously.
func (p *RealPublisher) send(msg bufferedMsg) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn("mqtt publish timeout", "topic", msg.topic)
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("mqtt publish failed", "topic", msg.topic, "error", err)
		}
	}()
}

// handleConnect replays buffered messages and announces a reconnect.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	reconnect := p.everConnected
	p.everConnected = true
	p.mu.Unlock()

	if reconnect {
		p.logger.Info("mqtt reconnected", "replaying", len(pending))
	} else {
		p.logger.Info("mqtt connected", "replaying", len(pending))
	}
	for _, msg := range pending {
		p.send(msg)
	}
	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err == nil {
			p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
		}
	}
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

var (
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)
