package broker

import (
	"context"
	"fmt"
	"time"

	"tiendita/internal/domain"
)

const (
	EventTypeSaleCompleted  = "sale.completed"
	EventTypeLedgerAppended = "ledger.appended"
)

type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

type SaleCompletedEvent struct {
	BaseEvent
	SaleID        string            `json:"sale_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	TotalCents    int64             `json:"total_cents"`
	DiscountCents int64             `json:"discount_cents"`
	PromotionID   string            `json:"promotion_id,omitempty"`
	PaymentMethod string            `json:"payment_method"`
	Lines         []domain.SaleLine `json:"lines"`
}

type LedgerAppendedEvent struct {
	BaseEvent
	EntrySeq    int64  `json:"entry_seq"`
	EntryID     string `json:"entry_id"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// EventPublisher publishes the domain events emitted by the sale and ledger
// paths. Publishing is best-effort: failures are logged by the caller, never
// surfaced to the cashier.
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, event *SaleCompletedEvent) error
	PublishLedgerAppended(ctx context.Context, event *LedgerAppendedEvent) error
}

type KafkaEventPublisher struct {
	producer *Producer
}

func NewEventPublisher(producer *Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

func (ep *KafkaEventPublisher) PublishSaleCompleted(ctx context.Context, event *SaleCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, event.SaleID, event)
}

func (ep *KafkaEventPublisher) PublishLedgerAppended(ctx context.Context, event *LedgerAppendedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("ledger-%d", event.EntrySeq), event)
}

// NoopEventPublisher is used when no brokers are configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishSaleCompleted(_ context.Context, _ *SaleCompletedEvent) error {
	return nil
}

func (NoopEventPublisher) PublishLedgerAppended(_ context.Context, _ *LedgerAppendedEvent) error {
	return nil
}
