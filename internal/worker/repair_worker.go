package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paidback/internal/amqp"
	"paidback/internal/core"
	"paidback/internal/recon"
	"paidback/internal/session"
	"paidback/internal/store"
)

// RepairWorker replays return-document patches that failed during an
// interactive reconciliation. Each message carries the transaction fields the
// attach/detach arithmetic needs, so replay never depends on the transaction
// still being readable.
//
// sess is the worker's service credential. The remote store refuses writes
// without a session on the context, so replaying against the remote backend
// requires one; local backends run fine with nil.
type RepairWorker struct {
	recon *recon.Service
	sess  *session.Session
}

func NewRepairWorker(recon *recon.Service, sess *session.Session) *RepairWorker {
	return &RepairWorker{recon: recon, sess: sess}
}

// HandleRepairMessage processes a single repair message from AMQP. A returned
// error leaves the message on the queue for another attempt; a message naming
// a return that no longer exists is dropped, since deleting a document does
// not cascade and redelivery could never succeed.
func (w *RepairWorker) HandleRepairMessage(ctx context.Context, msg *amqp.RepairMessage) error {
	if w.sess != nil {
		ctx = session.NewContext(ctx, w.sess)
	}

	slog.InfoContext(ctx, "Processing repair message",
		"op", msg.Op,
		"return_id", msg.ReturnID,
		"transaction_id", msg.TransactionID)

	t := core.Transaction{
		ID:                  msg.TransactionID,
		Amount:              core.Money{Cents: msg.AmountCents},
		TellerTransactionID: msg.TellerTransactionID,
	}

	var step recon.Step
	switch msg.Op {
	case amqp.RepairAttach:
		step = w.recon.Attach(ctx, msg.ReturnID, t)
	case amqp.RepairDetach:
		step = w.recon.Detach(ctx, msg.ReturnID, t)
	default:
		return fmt.Errorf("unknown repair op %q", msg.Op)
	}

	if errors.Is(step.Err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Dropping repair for deleted return",
			"op", msg.Op,
			"return_id", msg.ReturnID,
			"transaction_id", msg.TransactionID)
		return nil
	}
	if step.Err != nil {
		return fmt.Errorf("%s return %s: %w", msg.Op, msg.ReturnID, step.Err)
	}

	return nil
}
