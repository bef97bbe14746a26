package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds the broker connection options.
type Config struct {
	Host              string
	Port              int
	Username          string
	Password          string
	ConnectTimeout    time.Duration
	Heartbeat         time.Duration
	AutoReconnect     bool
	ReconnectInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5672
	}
	if c.Username == "" {
		c.Username = "guest"
	}
	if c.Password == "" {
		c.Password = "guest"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	return c
}

// URI renders the amqp connection string.
func (c Config) URI() string {
	u := amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		Vhost:    "/",
	}
	return u.String()
}

// Publisher is a RabbitMQ publisher that survives broker outages. Dialing is
// lazy: a failed broker never blocks construction, and with AutoReconnect
// enabled a dropped connection is redialed in the background until the
// broker returns. Publish reports failure to the caller instead of retrying.
type Publisher struct {
	cfg      Config
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewPublisher creates a publisher that declares the given exchange on
// connect. It does not dial; the first Connect or Publish does.
func NewPublisher(cfg Config, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:      cfg.withDefaults(),
		exchange: exchange,
		logger:   logger,
	}
}

// Connect dials the broker, opens a channel and declares the exchange.
func (p *Publisher) Connect() error {
	conn, err := amqp.DialConfig(p.cfg.URI(), amqp.Config{
		Heartbeat: p.cfg.Heartbeat,
		Dial:      amqp.DefaultDial(p.cfg.ConnectTimeout),
	})
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Ensure the exchange exists
	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("publisher is closed")
	}
	if p.conn != nil && !p.conn.IsClosed() {
		// A racing dial already stored a live connection. Keep that one
		// and discard ours, or it leaks along with its watcher.
		p.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return nil
	}
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	if p.cfg.AutoReconnect {
		go p.watch(conn)
	}
	return nil
}

// watch redials after an abnormal connection loss until the broker is back
// or the publisher is closed.
func (p *Publisher) watch(conn *amqp.Connection) {
	closeErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || closeErr == nil {
		return // graceful shutdown
	}
	p.logger.Warn("broker connection lost", "error", closeErr)

	for {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}

		if err := p.Connect(); err == nil {
			p.logger.Info("broker connection restored")
			return // Connect started a new watcher
		}
		time.Sleep(p.cfg.ReconnectInterval)
	}
}

// Publish publishes a message to the broker. It dials lazily if no
// connection is live; any failure is returned to the caller and never
// retried here.
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	ch, err := p.currentChannel()
	if err != nil {
		return fmt.Errorf("broker unavailable: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

func (p *Publisher) currentChannel() (*amqp.Channel, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("publisher is closed")
	}
	ch := p.channel
	live := p.conn != nil && !p.conn.IsClosed()
	p.mu.Unlock()

	if ch != nil && live {
		return ch, nil
	}
	if err := p.Connect(); err != nil {
		return nil, err
	}

	// Close may have run after Connect succeeded.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.channel == nil {
		return nil, fmt.Errorf("publisher is closed")
	}
	return p.channel, nil
}

// Close closes the channel and connection and stops reconnecting.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); err == nil {
			err = connErr
		}
		p.conn = nil
	}
	return err
}
