package amqp

import (
	"encoding/json"
	"time"
)

const (
	RepairAttach = "attach"
	RepairDetach = "detach"
)

// RepairMessage asks the worker to replay a return-document patch that failed
// after its transaction patch had already committed. It carries everything
// the attach/detach arithmetic needs, so the worker never has to re-fetch the
// transaction.
type RepairMessage struct {
	Op                  string    `json:"op"` // attach or detach
	ReturnID            string    `json:"returnId"`
	TransactionID       string    `json:"transactionId"`
	TellerTransactionID string    `json:"tellerTransactionId,omitempty"`
	AmountCents         int64     `json:"amountCents"` // magnitude
	Timestamp           time.Time `json:"timestamp"`
}

func NewRepairMessage(op, returnID, transactionID, tellerID string, amountCents int64) *RepairMessage {
	return &RepairMessage{
		Op:                  op,
		ReturnID:            returnID,
		TransactionID:       transactionID,
		TellerTransactionID: tellerID,
		AmountCents:         amountCents,
		Timestamp:           time.Now(),
	}
}

func (m *RepairMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RepairMessageFromJSON(data []byte) (*RepairMessage, error) {
	var msg RepairMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
