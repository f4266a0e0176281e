// Package mqttproto implements elink's Protocol port (C1) for the Elegoo
// FDM CC and CC2 families, which speak JSON-framed MQTT over the local
// network: a request is published to one topic, responses and
// printer-initiated events arrive on another. Built on
// eclipse/paho.mqtt.golang, the only MQTT client library found anywhere
// in the retrieved corpus.
package mqttproto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"elink/connparams"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
	publishQoS        = 1
)

// Client is an MQTT-backed Protocol for one printer.
type Client struct {
	printerID string
	host      string
	port      int

	requestTopic string
	eventTopic   string

	mu     sync.Mutex
	client mqtt.Client

	messageHandler func([]byte)
	statusHandler  func(bool)
}

// New constructs a Client for printerID at host:port. Topic names follow
// the vendor convention of scoping both request and event topics under
// the printer id, so a shared broker can host many printers without
// cross-talk.
func New(printerID, host string, port int) *Client {
	return &Client{
		printerID:    printerID,
		host:         host,
		port:         port,
		requestTopic: fmt.Sprintf("elegoo/%s/request", printerID),
		eventTopic:   fmt.Sprintf("elegoo/%s/report", printerID),
	}
}

// SetMessageHandler installs the inbound frame callback. Must be called
// before Connect.
func (c *Client) SetMessageHandler(handler func(frame []byte)) {
	c.mu.Lock()
	c.messageHandler = handler
	c.mu.Unlock()
}

// SetStatusChangedHandler installs the connection-status callback. Must
// be called before Connect.
func (c *Client) SetStatusChangedHandler(handler func(connected bool)) {
	c.mu.Lock()
	c.statusHandler = handler
	c.mu.Unlock()
}

// Connect dials the broker at host:port, subscribes to the printer's
// event topic, and wires paho's connection-lost callback through to the
// status handler. paho reconnects automatically, but a reconnect is not
// reported to the status handler. params is accepted for interface
// conformance; the broker address was already fixed at New time, so only
// params.Timeout (if set) overrides the connect deadline.
func (c *Client) Connect(ctx context.Context, params connparams.Params) error {
	timeout := connectTimeout
	if params.Timeout > 0 {
		timeout = params.Timeout
	}
	return c.connect(ctx, timeout)
}

func (c *Client) connect(ctx context.Context, timeout time.Duration) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.host, c.port))
	opts.SetClientID(fmt.Sprintf("elink-%s", c.printerID))
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.notifyStatus(false)
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("elink/mqttproto: connect to %s:%d timed out", c.host, c.port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("elink/mqttproto: connect to %s:%d: %w", c.host, c.port, err)
	}

	subToken := client.Subscribe(c.eventTopic, publishQoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.mu.Lock()
		handler := c.messageHandler
		c.mu.Unlock()
		if handler != nil {
			handler(msg.Payload())
		}
	})
	if !subToken.WaitTimeout(timeout) {
		client.Disconnect(disconnectQuiesce)
		return fmt.Errorf("elink/mqttproto: subscribe to %s timed out", c.eventTopic)
	}
	if err := subToken.Error(); err != nil {
		client.Disconnect(disconnectQuiesce)
		return fmt.Errorf("elink/mqttproto: subscribe to %s: %w", c.eventTopic, err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.notifyStatus(true)
	return nil
}

// Disconnect unsubscribes and closes the MQTT connection.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return nil
	}
	client.Unsubscribe(c.eventTopic)
	client.Disconnect(disconnectQuiesce)
	return nil
}

// Send publishes frame to the printer's request topic.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return fmt.Errorf("elink/mqttproto: not connected")
	}

	token := client.Publish(c.requestTopic, publishQoS, false, frame)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("elink/mqttproto: publish timed out")
	}
	return token.Error()
}

func (c *Client) notifyStatus(connected bool) {
	c.mu.Lock()
	handler := c.statusHandler
	c.mu.Unlock()
	if handler != nil {
		handler(connected)
	}
}
