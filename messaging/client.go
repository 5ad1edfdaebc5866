package messaging

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"

	"github.com/sahilp2023/agrocyle-sub001/config"
)

// MessageHandler receives raw message bytes for a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Publisher is the send side of a Client.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Client is the unified messaging client for the Kafka, MQTT and AMQP backends.
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	backend  string
	kafka    *kafkaState
	mqttConn mqtt.Client
	amqp     *amqpState
	handlers map[string]MessageHandler
}

type kafkaState struct {
	readers map[string]*kafka.Reader
	writer  *kafka.Writer
}

type amqpState struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:      cfg,
		backend:  cfg.Backend,
		handlers: make(map[string]MessageHandler),
	}
}

// Connect establishes the backend connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "kafka":
		return c.connectKafka()
	case "mqtt":
		return c.connectMQTT()
	case "amqp":
		return c.connectAMQP()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			log.Printf("messaging: kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}
	c.ensureTopics(conn, c.cfg.InboundTopic, c.cfg.ReplyTopic, c.cfg.DeliveredTopic)
	conn.Close()

	c.kafka = &kafkaState{
		readers: make(map[string]*kafka.Reader),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged but not fatal since the broker may auto-create topics anyway.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	controller, err := conn.Controller()
	if err != nil {
		log.Printf("messaging: cannot find controller for topic creation: %v", err)
		return
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Printf("messaging: cannot connect to controller: %v", err)
		return
	}
	defer controllerConn.Close()

	var configs []kafka.TopicConfig
	for _, t := range topics {
		if t == "" {
			continue
		}
		configs = append(configs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
	}
	if err := controllerConn.CreateTopics(configs...); err != nil {
		log.Printf("messaging: topic auto-create: %v", err)
	} else {
		log.Printf("messaging: ensured topics exist: %v", topics)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.resubscribeMQTT)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	log.Printf("messaging: mqtt connected to %s", broker)
	return nil
}

// resubscribeMQTT restores subscriptions after paho reconnects on a flaky link.
func (c *Client) resubscribeMQTT(client mqtt.Client) {
	c.mu.RLock()
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		handlers[k] = v
	}
	c.mu.RUnlock()
	for topic, h := range handlers {
		client.Subscribe(topic, 1, mqttCallback(h))
	}
}

func mqttCallback(h MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func (c *Client) connectAMQP() error {
	conn, err := amqp.Dial(c.cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.AMQP.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("amqp declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("amqp confirm mode: %w", err)
	}
	c.amqp = &amqpState{conn: conn, ch: ch}
	log.Printf("messaging: amqp connected, exchange %s", c.cfg.AMQP.Exchange)
	return nil
}

// Publish sends payload to topic. For AMQP it waits for the broker's confirm,
// so a nil error means the broker has taken responsibility for the message.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "kafka":
		if c.kafka == nil || c.kafka.writer == nil {
			return fmt.Errorf("kafka not connected")
		}
		return c.kafka.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload})
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case "amqp":
		if c.amqp == nil {
			return fmt.Errorf("amqp not connected")
		}
		dc, err := c.amqp.ch.PublishWithDeferredConfirmWithContext(ctx, c.cfg.AMQP.Exchange, topic, false, false, amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         payload,
		})
		if err != nil {
			return fmt.Errorf("amqp publish: %w", err)
		}
		ok, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("amqp confirm: %w", err)
		}
		if !ok {
			return fmt.Errorf("amqp broker nacked message on %s", topic)
		}
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(ctx context.Context, topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(ctx, topic, data)
}

// Subscribe registers handler for topic and starts delivery.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler

	switch c.backend {
	case "kafka":
		if c.kafka == nil {
			return fmt.Errorf("kafka not connected")
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.kafka.readers[topic] = reader
		go func() {
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					return
				}
				handler(msg.Topic, msg.Value)
			}
		}()
		return nil
	case "mqtt":
		if c.mqttConn == nil {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Subscribe(topic, 1, mqttCallback(handler))
		token.Wait()
		return token.Error()
	case "amqp":
		if c.amqp == nil {
			return fmt.Errorf("amqp not connected")
		}
		return c.subscribeAMQP(topic, handler)
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

func (c *Client) subscribeAMQP(topic string, handler MessageHandler) error {
	ch, err := c.amqp.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp consumer channel: %w", err)
	}
	queue := c.cfg.AMQP.QueuePrefix + "." + topic
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("amqp declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, topic, c.cfg.AMQP.Exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("amqp bind %s: %w", queue, err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, c.cfg.MQTT.ClientID, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("amqp consume %s: %w", queue, err)
	}
	go func() {
		for d := range deliveries {
			handler(d.RoutingKey, d.Body)
			d.Ack(false)
		}
	}()
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "kafka":
		return c.kafka != nil
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "amqp":
		return c.amqp != nil && !c.amqp.conn.IsClosed()
	}
	return false
}

// Reconfigure closes the existing connection and reconnects with new config.
// Registered subscriptions are restored.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.Close()
	c.mu.Lock()
	c.cfg = cfg
	c.backend = cfg.Backend
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		handlers[k] = v
	}
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}
	for topic, handler := range handlers {
		if err := c.Subscribe(topic, handler); err != nil {
			log.Printf("messaging: re-subscribe %s after reconfigure: %v", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kafka != nil {
		for _, r := range c.kafka.readers {
			r.Close()
		}
		if c.kafka.writer != nil {
			c.kafka.writer.Close()
		}
		c.kafka = nil
	}
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.amqp != nil {
		c.amqp.ch.Close()
		c.amqp.conn.Close()
		c.amqp = nil
	}
}
