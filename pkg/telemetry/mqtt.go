package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// MQTTClient talks to the telemetry API via its MQTT broker. Values are
// published to `<username>/feeds/<feed>`; the last value of a feed is
// requested by publishing to `<username>/feeds/<feed>/get`, which makes the
// broker republish it to subscribers of the feed topic.
//
// The broker keeps a single handler per topic, so each feed is subscribed to
// once for the lifetime of the connection and every value received is handed
// to all callers currently waiting on that feed.
type MQTTClient struct {
	broker    string
	username  string
	key       string
	timeout   time.Duration
	verbose   bool
	connector Connector
	logger    kitlog.Logger

	sync.Mutex
	client        paho.Client
	subscriptions map[string]*subscription
	waiters       map[string]map[chan string]struct{}
}

// subscription tracks the state of the broker subscription to a feed topic.
// ready is closed once the subscribe completes, after which err is safe to
// read.
type subscription struct {
	ready chan struct{}
	err   error
}

// ensure we adhere to the interface
var _ Client = &MQTTClient{}

// NewMQTTClient returns a new MQTTClient. The broker connection is created on
// Start, or lazily on first use.
func NewMQTTClient(broker, username, key string, timeout time.Duration, verbose bool, connector Connector, logger kitlog.Logger) *MQTTClient {
	return &MQTTClient{
		broker:        broker,
		username:      username,
		key:           key,
		timeout:       timeout,
		verbose:       verbose,
		connector:     connector,
		logger:        kitlog.With(logger, "transport", TransportMQTT),
		subscriptions: map[string]*subscription{},
		waiters:       map[string]map[chan string]struct{}{},
	}
}

// Start connects to the broker.
func (m *MQTTClient) Start() error {
	m.logger.Log("msg", "starting mqtt telemetry client")

	_, err := m.getClient()
	return err
}

// Stop disconnects from the broker if connected. Subscriptions die with the
// connection so are forgotten.
func (m *MQTTClient) Stop() error {
	m.logger.Log("msg", "stopping mqtt telemetry client")

	m.Lock()
	defer m.Unlock()

	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}

	m.subscriptions = map[string]*subscription{}

	return nil
}

// Receive requests and waits for the last value of the feed. Concurrent calls
// for the same feed share the feed subscription and each receive the value.
func (m *MQTTClient) Receive(ctx context.Context, feed string) (_ string, err error) {
	start := time.Now()
	defer func() { observe(TransportMQTT, "receive", start, err) }()

	client, err := m.getClient()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	topic := m.feedTopic(feed)

	values := m.addWaiter(topic)
	defer m.removeWaiter(topic, values)

	err = m.subscribe(ctx, client, topic)
	if err != nil {
		return "", errors.Wrapf(err, "failed to subscribe to feed %s", feed)
	}

	err = waitToken(ctx, client.Publish(topic+"/get", 1, false, "\x00"))
	if err != nil {
		return "", errors.Wrapf(err, "failed to request last value of feed %s", feed)
	}

	select {
	case value := <-values:
		if m.verbose {
			level.Debug(m.logger).Log("msg", "received feed value", "feed", feed, "value", value)
		}
		return value, nil
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "no value received for feed %s", feed)
	}
}

// subscribe makes sure the topic is subscribed to, waiting for an in flight
// subscribe by another caller if there is one. A failed subscribe is
// forgotten so the next caller retries it.
func (m *MQTTClient) subscribe(ctx context.Context, client paho.Client, topic string) error {
	m.Lock()
	sub, ok := m.subscriptions[topic]
	if !ok {
		sub = &subscription{ready: make(chan struct{})}
		m.subscriptions[topic] = sub
	}
	m.Unlock()

	if !ok {
		handler := func(_ paho.Client, message paho.Message) {
			m.dispatch(topic, string(message.Payload()))
		}

		// not bound to ctx, the subscription outlives this call
		subCtx, subCancel := context.WithTimeout(context.Background(), m.timeout)
		sub.err = waitToken(subCtx, client.Subscribe(topic, 1, handler))
		subCancel()
		if sub.err != nil {
			m.Lock()
			if m.subscriptions[topic] == sub {
				delete(m.subscriptions, topic)
			}
			m.Unlock()
		}
		close(sub.ready)
	}

	select {
	case <-sub.ready:
		return sub.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch hands a received value to every caller waiting on the topic.
func (m *MQTTClient) dispatch(topic, value string) {
	m.Lock()
	defer m.Unlock()

	for ch := range m.waiters[topic] {
		select {
		case ch <- value:
		default:
		}
	}
}

func (m *MQTTClient) addWaiter(topic string) chan string {
	ch := make(chan string, 1)

	m.Lock()
	defer m.Unlock()

	if m.waiters[topic] == nil {
		m.waiters[topic] = map[chan string]struct{}{}
	}
	m.waiters[topic][ch] = struct{}{}

	return ch
}

func (m *MQTTClient) removeWaiter(topic string, ch chan string) {
	m.Lock()
	defer m.Unlock()

	delete(m.waiters[topic], ch)
	if len(m.waiters[topic]) == 0 {
		delete(m.waiters, topic)
	}
}

// Send publishes the value to the feed topic.
func (m *MQTTClient) Send(ctx context.Context, feed, value string) (err error) {
	start := time.Now()
	defer func() { observe(TransportMQTT, "send", start, err) }()

	client, err := m.getClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err = waitToken(ctx, client.Publish(m.feedTopic(feed), 1, false, value))
	if err != nil {
		return errors.Wrapf(err, "failed to publish to feed %s", feed)
	}

	if m.verbose {
		level.Debug(m.logger).Log("msg", "sent feed value", "feed", feed, "value", value)
	}

	return nil
}

// feedTopic returns the topic on which values for the feed are published.
func (m *MQTTClient) feedTopic(feed string) string {
	return fmt.Sprintf("%s/feeds/%s", m.username, feed)
}

// getClient returns the connected paho client, connecting if required.
func (m *MQTTClient) getClient() (paho.Client, error) {
	m.Lock()
	defer m.Unlock()

	if m.client != nil {
		return m.client, nil
	}

	client, err := m.connector.Connect(m.broker, m.username, m.key, m.logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to broker")
	}

	m.client = client

	return client, nil
}

// waitToken blocks until the token completes or the context is done.
func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
