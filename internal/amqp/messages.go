package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"debts/internal/core"
)

// PaymentRecordedMessage announces a committed payment. Consumers reload the
// debt and its history from the record store; the amounts are informational.
type PaymentRecordedMessage struct {
	PaymentID    uuid.UUID  `json:"paymentId"`
	DebtID       uuid.UUID  `json:"debtId"`
	HouseholdID  string     `json:"householdId"`
	Amount       core.Money `json:"amount"`
	Principal    core.Money `json:"principalAmount"`
	Interest     core.Money `json:"interestAmount"`
	Currency     string     `json:"currency"`
	PaymentDate  core.Date  `json:"paymentDate"`
	BalanceAfter core.Money `json:"balanceAfter"`
	Timestamp    time.Time  `json:"timestamp"`
}

func NewPaymentRecordedMessage(householdID string, p core.Payment, balanceAfterCents int64) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		PaymentID:    p.ID,
		DebtID:       p.DebtID,
		HouseholdID:  householdID,
		Amount:       core.Money{Cents: p.AmountCents},
		Principal:    core.Money{Cents: p.PrincipalCents},
		Interest:     core.Money{Cents: p.InterestCents},
		Currency:     p.Currency,
		PaymentDate:  p.PaymentDate,
		BalanceAfter: core.Money{Cents: balanceAfterCents},
		Timestamp:    time.Now().UTC(),
	}
}

func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
