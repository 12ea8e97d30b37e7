package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sitebeacon/stats-service/internal/domain"
)

const (
	DefaultExchange = "stats.events"

	// Wait window for Return / Confirm
	publishWait = 150 * time.Millisecond
)

// Publisher streams accepted events to a topic exchange for live dashboard
// consumers. The stream is lossy by contract: ingestion never depends on it.
type Publisher struct {
	url      string
	exchange string

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	p := &Publisher{
		url:      url,
		exchange: exchange,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// streamEvent is the wire shape of one published event.
type streamEvent struct {
	Timestamp string `json:"ts"`
	Date      string `json:"date"`
	Domain    string `json:"domain"`
	Type      string `json:"type"`
	Item      string `json:"item,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Country   string `json:"country"`
}

// PublishEvent publishes one accepted event with routing key stats.<type>.
func (p *Publisher) PublishEvent(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(streamEvent{
		Timestamp: e.OccurredAt.UTC().Format(time.RFC3339),
		Date:      e.Date,
		Domain:    e.Domain,
		Type:      string(e.Type),
		Item:      e.Item,
		Referrer:  e.Referrer,
		Country:   e.Country,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return errors.New("publisher channel not ready")
	}

	err = p.ch.PublishWithContext(
		ctx,
		p.exchange,
		RoutingKey(e.Type),
		false, // mandatory: no bound consumer is a normal condition here
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		},
	)
	if err != nil {
		return err
	}

	// Wait briefly for either Return or Confirm
	select {
	case ret := <-p.returnCh:
		return errors.New("NO_ROUTE: " + ret.RoutingKey)
	case conf := <-p.confirmCh:
		if !conf.Ack {
			return errors.New("publish nack")
		}
		return nil
	case <-time.After(publishWait):
		// neither arrived inside the window; the stream is lossy anyway
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func RoutingKey(t domain.EventType) string {
	return "stats." + string(t)
}
