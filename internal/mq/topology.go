package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeRuns Exchange = "playroom.runs"
	ExchangeDLQ  Exchange = "playroom.dlq"
)

const (
	QueueRunsPending Queue = "runs.pending"
	QueueDLQRuns     Queue = "dlq.runs"
)

const (
	RoutingKeyPending RoutingKey = "pending"
	RoutingKeyDLQRuns RoutingKey = "runs"
)

// QueueSpec описывает очередь и её привязку.
type QueueSpec struct {
	Name       Queue
	Exchange   Exchange
	RoutingKey RoutingKey
	DeadLetter bool
}

// Topology — полный набор объектов брокера.
type Topology struct {
	Exchanges []Exchange
	Queues    []QueueSpec
}

// DefaultTopology возвращает топологию Playroom.
//
// runs.pending отправляет отвергнутые сообщения в dlq.runs:
// run, упавший на повторной доставке, не крутится в очереди бесконечно.
func DefaultTopology() Topology {
	return Topology{
		Exchanges: []Exchange{ExchangeRuns, ExchangeDLQ},
		Queues: []QueueSpec{
			{Name: QueueRunsPending, Exchange: ExchangeRuns, RoutingKey: RoutingKeyPending, DeadLetter: true},
			{Name: QueueDLQRuns, Exchange: ExchangeDLQ, RoutingKey: RoutingKeyDLQRuns},
		},
	}
}

// Validate проверяет, что каждая очередь привязана к объявленному exchange.
func (t Topology) Validate() error {
	declared := make(map[Exchange]bool, len(t.Exchanges))
	for _, ex := range t.Exchanges {
		declared[ex] = true
	}
	for _, q := range t.Queues {
		if !declared[q.Exchange] {
			return fmt.Errorf("queue %s bound to undeclared exchange %s", q.Name, q.Exchange)
		}
	}
	return nil
}

// SetupTopology объявляет exchanges и queues и связывает их.
func SetupTopology(ctx context.Context, conn *Connection) error {
	topo := DefaultTopology()
	if err := topo.Validate(); err != nil {
		return err
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topo.Exchanges {
			// durable, не auto-delete, не internal, без no-wait
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range topo.Queues {
			var args amqp.Table
			if q.DeadLetter {
				args = amqp.Table{
					"x-dead-letter-exchange":    string(ExchangeDLQ),
					"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
				}
			}
			if _, err := ch.QueueDeclare(string(q.Name), true, false, false, false, args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.Name, err)
			}
			if err := ch.QueueBind(string(q.Name), string(q.RoutingKey), string(q.Exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.Name, q.Exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для лога при старте.
func TopologyInfo() string {
	var b strings.Builder
	topo := DefaultTopology()
	for _, ex := range topo.Exchanges {
		fmt.Fprintf(&b, "%s (direct)\n", ex)
		for _, q := range topo.Queues {
			if q.Exchange != ex {
				continue
			}
			fmt.Fprintf(&b, "  └── %s [routing: %s]", q.Name, q.RoutingKey)
			if q.DeadLetter {
				fmt.Fprintf(&b, " dlq: %s", QueueDLQRuns)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
