// Package event publishes committed transaction mutations to downstream systems.
package event

import (
	"context"
	"log/slog"
	"time"
)

// Event kinds.
const (
	KindTransactionCreated = "transaction_created"
	KindTransactionAmended = "transaction_amended"
	KindTransactionDeleted = "transaction_deleted"
)

// Event describes one committed transaction mutation.
// PreviousWalletID is only set when an amendment moved the transaction.
type Event struct {
	Kind             string    `json:"kind"`
	TransactionID    string    `json:"transaction_id"`
	TxID             string    `json:"txid"`
	WalletID         string    `json:"wallet_id"`
	PreviousWalletID string    `json:"previous_wallet_id,omitempty"`
	Amount           string    `json:"amount"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Publisher delivers events. Publishing happens after commit, so a failure
// never undoes the mutation.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LoggerPublisher) Publish(_ context.Context, e Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event",
		"kind", e.Kind,
		"transaction_id", e.TransactionID,
		"txid", e.TxID,
		"wallet_id", e.WalletID,
		"amount", e.Amount,
	)
	return nil
}
