package transaction

import (
	"time"

	"kudi/internal/models"
)

// transitions lists the allowed moves out of each status.
var transitions = map[models.TransactionStatus][]models.TransactionStatus{
	models.StatusInitiated:       {models.StatusPendingExternal, models.StatusCompleted, models.StatusFailed},
	models.StatusPendingExternal: {models.StatusProcessing, models.StatusCompleted, models.StatusFailed},
	models.StatusProcessing:      {models.StatusCompleted, models.StatusFailed},
	models.StatusCompleted:       {models.StatusRefunded},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to models.TransactionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Update carries provider data recorded alongside a transition.
type Update struct {
	ProviderRef  string
	ProviderTxID string
	Reason       string
	// Webhook stamps webhook_processed_at. Leaving an in-flight status also
	// requires it to be unset.
	Webhook bool
	// Internal marks an outcome settled entirely inside the ledger. A ledger
	// rejection then fails the transaction instead of flagging it.
	Internal bool
}

// Action describes what handling a provider outcome did.
type Action string

const (
	ActionApplied  Action = "applied"
	ActionNoop     Action = "noop"
	ActionIgnored  Action = "ignored"
	ActionConflict Action = "conflict"
	// ActionFlagged means the ledger update failed and operators must settle
	// the transaction by hand.
	ActionFlagged Action = "flagged"
)

// WebhookResult reports how a notification was handled.
type WebhookResult struct {
	TransactionID string                   `json:"transaction_id,omitempty"`
	Action        Action                   `json:"action"`
	Status        models.TransactionStatus `json:"status,omitempty"`
}

// SweepReport summarises one sweeper pass.
type SweepReport struct {
	Scanned   int           `json:"scanned"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Refunded  int           `json:"refunded"`
	Errors    int           `json:"errors"`
	Elapsed   time.Duration `json:"elapsed"`
}
