package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// Routing keys on the topic exchange.
const (
	RoutingKeyTransactionCreated = "transaction.created"
	RoutingKeyApprovalRequested  = "approval.requested"
)

// TransactionCreatedMessage announces a materialized transaction.
// Consumers fetch the full transaction from storage.
type TransactionCreatedMessage struct {
	TransactionID uuid.UUID     `json:"transaction_id"`
	UserID        uuid.UUID     `json:"user_id"`
	RuleID        uuid.NullUUID `json:"rule_id"`
	Date          core.Date     `json:"date"`
	Timestamp     time.Time     `json:"timestamp"`
}

func NewTransactionCreatedMessage(tx core.Transaction) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		RuleID:        tx.RecurringRuleID,
		Date:          tx.Date,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ApprovalRequestedMessage announces a new pending approval.
type ApprovalRequestedMessage struct {
	ApprovalID    uuid.UUID `json:"approval_id"`
	UserID        uuid.UUID `json:"user_id"`
	RuleID        uuid.UUID `json:"rule_id"`
	ScheduledDate core.Date `json:"scheduled_date"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewApprovalRequestedMessage(pa core.PendingApproval) *ApprovalRequestedMessage {
	return &ApprovalRequestedMessage{
		ApprovalID:    pa.ID,
		UserID:        pa.UserID,
		RuleID:        pa.RuleID,
		ScheduledDate: pa.ScheduledDate,
		Timestamp:     time.Now(),
	}
}

func (m *ApprovalRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ApprovalRequestedMessageFromJSON(data []byte) (*ApprovalRequestedMessage, error) {
	var msg ApprovalRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
