package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"livechat/pkg/logger"
)

// envelope is the wire form of an Event on the exchange. Origin lets a
// node skip its own publications when they come back around.
type envelope struct {
	ID     string          `json:"id"`
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

// Relay spans hubs across nodes: local events are published to a topic
// exchange, peer events are re-injected into the local hub. With no relay
// configured the Hub alone serves a single node.
type Relay struct {
	hub      *Hub
	conn     *amqp091.Connection
	exchange string
	nodeID   string
	log      logger.Logger
	done     chan struct{}
}

func NewRelay(url, exchange string, hub *Hub, lg logger.Logger) (*Relay, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &Relay{
		hub:      hub,
		conn:     conn,
		exchange: exchange,
		nodeID:   uuid.NewString(),
		log:      lg,
		done:     make(chan struct{}),
	}, nil
}

func (r *Relay) ToRoom(roomID string, ev Event) {
	r.hub.ToRoom(roomID, ev)
	r.publish("room."+roomID, roomID, ev)
}

func (r *Relay) ToAgents(ev Event) {
	r.hub.ToAgents(ev)
	r.publish("room."+AgentQueueRoom, AgentQueueRoom, ev)
}

func (r *Relay) publish(key, roomID string, ev Event) {
	ch, err := r.conn.Channel()
	if err != nil {
		r.log.Error("relay channel open failed", "err", err)
		return
	}
	defer ch.Close()

	data, err := json.Marshal(ev.Payload)
	if err != nil {
		r.log.Error("relay payload marshal failed", "err", err, "event", ev.Name)
		return
	}
	body, err := json.Marshal(envelope{
		ID:     uuid.NewString(),
		Origin: r.nodeID,
		Event:  ev.Name,
		Room:   roomID,
		Data:   data,
		SentAt: time.Now(),
	})
	if err != nil {
		r.log.Error("relay envelope marshal failed", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		r.log.Error("relay publish failed", "err", err, "key", key)
	}
}

// Start binds a per-node queue to all room keys and consumes peer events
// until Close.
func (r *Relay) Start() error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	q, err := ch.QueueDeclare("livechat."+r.nodeID, false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "room.#", r.exchange, false, nil); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-r.done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				r.inject(msg.Body)
			}
		}
	}()
	r.log.Info("event relay started", "exchange", r.exchange, "queue", q.Name)
	return nil
}

func (r *Relay) inject(body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		r.log.Warn("relay dropped malformed envelope", "err", err)
		return
	}
	if env.Origin == r.nodeID {
		return
	}
	r.hub.ToRoom(env.Room, Event{Name: env.Event, Payload: env.Data})
}

func (r *Relay) Close() error {
	close(r.done)
	return r.conn.Close()
}
