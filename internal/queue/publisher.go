package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits domain events. Publishing failures are reported to the
// caller, which decides whether they matter; checkout only logs them.
type Publisher interface {
	PublishReservationConfirmed(ctx context.Context, ev ReservationConfirmedEvent) error
}

// AMQPPublisher publishes to RabbitMQ. The connection is dialed lazily and
// redialed after it drops.
type AMQPPublisher struct {
	url string
	log *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{url: url, log: logger.With("component", "amqp-publisher")}
}

func (p *AMQPPublisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// PublishReservationConfirmed sends ev to the reservation.confirmed queue
// as a persistent message.
func (p *AMQPPublisher) PublishReservationConfirmed(ctx context.Context, ev ReservationConfirmedEvent) error {
	conn, err := p.connection()
	if err != nil {
		p.log.Warn("publish failed", "error", err)
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ReservationConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ReservationConfirmedQueue, false, false, pub); err != nil {
		p.log.Warn("publish failed", "reservation_id", ev.ReservationID, "error", err)
		return fmt.Errorf("publish: %w", err)
	}
	p.log.Debug("published", "queue", ReservationConfirmedQueue, "reservation_id", ev.ReservationID)
	return nil
}

// Close closes the broker connection, if any.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) PublishReservationConfirmed(ctx context.Context, ev ReservationConfirmedEvent) error {
	l := p.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "reservation confirmed",
		"reservation_id", ev.ReservationID,
		"trip_id", ev.TripID,
		"seats", ev.Seats,
		"total", ev.Total.String(),
		"method", ev.Method,
	)
	return nil
}
