// Package kafka publishes appointment events to a Kafka topic, keyed by
// appointment id so every event for one appointment lands on one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"salonbook/backend/internal/notify"
)

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderSource    = "source"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w      messageWriter
	source string
}

var _ notify.Notifier = (*Publisher)(nil)

type Config struct {
	Brokers string
	Topic   string
	Source  string
}

func NewPublisher(cfg Config) (*Publisher, error) {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("topic cannot be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, cfg.Source), nil
}

func newPublisher(w messageWriter, source string) *Publisher {
	if source == "" {
		source = "salon-server"
	}
	return &Publisher{w: w, source: source}
}

type payload struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurred_at"`
	AppointmentID string    `json:"appointment_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	StylistID     string    `json:"stylist_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name,omitempty"`
	ContactNumber string    `json:"contact_number,omitempty"`
	ServiceRefs   []string  `json:"service_refs,omitempty"`
	TotalPrice    int64     `json:"total_price"`
	TotalDuration int       `json:"total_duration_minutes"`
	Status        string    `json:"status"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	PreviousDate  string    `json:"previous_date,omitempty"`
	PreviousTime  string    `json:"previous_time,omitempty"`
}

func (p *Publisher) Notify(ctx context.Context, ev notify.Event) error {
	msg, err := p.message(ctx, ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func (p *Publisher) message(ctx context.Context, ev notify.Event) (kafka.Message, error) {
	eventID, err := uuid.NewV7()
	if err != nil {
		return kafka.Message{}, err
	}
	a := ev.Appointment
	body := payload{
		EventID:       eventID.String(),
		Type:          string(ev.Type),
		OccurredAt:    ev.OccurredAt,
		AppointmentID: a.ID.String(),
		Date:          a.Date,
		Time:          a.Time,
		StylistID:     a.StylistID,
		CustomerID:    a.CustomerID,
		CustomerName:  a.CustomerName,
		ContactNumber: a.ContactNumber,
		ServiceRefs:   a.ServiceRefs,
		TotalPrice:    a.TotalPrice,
		TotalDuration: a.TotalDuration,
		Status:        string(a.Status),
		CancelReason:  a.CancelReason,
	}
	if ev.Previous != nil {
		body.PreviousDate = ev.Previous.Date
		body.PreviousTime = ev.Previous.Time
	}
	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(body.EventID)},
		{Key: HeaderEventType, Value: []byte(body.Type)},
		{Key: HeaderSource, Value: []byte(p.source)},
	}
	headers = injectTraceHeaders(ctx, headers)

	return kafka.Message{
		Key:     []byte(body.AppointmentID),
		Value:   value,
		Headers: headers,
		Time:    ev.OccurredAt,
	}, nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func SplitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
