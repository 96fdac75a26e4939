// Package settlement talks to the external providers that move value out of
// the wallet and normalises their statuses and webhooks.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
)

// ErrStatusQueryUnsupported is returned by adapters that settle synchronously
// and have nothing to poll.
var ErrStatusQueryUnsupported = errors.New("provider does not support status queries")

// Outcome is a provider status reduced to what the ledger cares about.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRefunded  Outcome = "refunded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeOther covers accepted, queued and in-progress states.
	OutcomeOther Outcome = "other"
)

// Final reports whether the outcome settles the transaction.
func (o Outcome) Final() bool {
	return o == OutcomeCompleted || o == OutcomeRefunded || o == OutcomeFailed
}

// StatusTable maps a provider's status vocabulary onto outcomes. Unknown
// statuses are OutcomeOther so the sweeper resolves them later.
type StatusTable map[string]Outcome

func (t StatusTable) Classify(status string) Outcome {
	if o, ok := t[strings.ToLower(strings.TrimSpace(status))]; ok {
		return o
	}
	return OutcomeOther
}

// Request is one outbound settlement.
type Request struct {
	TransactionID  string
	RequestID      string
	UserID         uint
	Type           models.TransactionType
	Asset          models.Asset
	Amount         decimal.Decimal
	Destination    string
	CounterpartyID *uint
	Metadata       map[string]string
}

// Result is the provider's answer to a submit or a status query.
type Result struct {
	Outcome      Outcome
	Status       string
	ProviderRef  string
	ProviderTxID string
	Message      string
}

// Ref identifies an order at the provider.
type Ref struct {
	RequestID   string
	ProviderRef string
}

// Adapter is one settlement provider.
type Adapter interface {
	Name() string
	Mode() models.SettlementMode
	Submit(ctx context.Context, req Request) (*Result, error)
	QueryStatus(ctx context.Context, ref Ref) (*Result, error)
}

// IsInternal reports whether a settles inside the ledger only, with nothing
// to undo at an external provider.
func IsInternal(a Adapter) bool {
	i, ok := a.(interface{ Internal() bool })
	return ok && i.Internal()
}

// Notification is a verified webhook reduced to lookup keys and an outcome.
type Notification struct {
	Provider     string
	RequestID    string
	OrderID      string
	ProviderTxID string
	Status       string
	Outcome      Outcome
}

// WebhookParser verifies and decodes a provider's webhook body.
type WebhookParser interface {
	Name() string
	ParseWebhook(body []byte, signature string) (*Notification, error)
}

// Registry holds the configured adapters by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("settlement provider %q not registered", name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
