package flow

import (
	"sync"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// BudgetKey addresses one budget in a ledger.
type BudgetKey struct {
	Context   ids.ContextId
	Authority ids.AuthorityId
}

type nonceKey struct {
	Context   ids.ContextId
	Authority ids.AuthorityId
	Epoch     ids.Epoch
}

// Ledger owns the flow budgets and receipt nonces of one device. Budgets
// are created lazily on first charge (or explicitly via SetLimit), rotated
// on epoch change, and never destroyed except by compaction beyond the
// epoch floor.
type Ledger struct {
	mu           sync.Mutex
	budgets      map[BudgetKey]Budget
	nonces       map[nonceKey]uint64
	defaultLimit uint64
}

// NewLedger returns an empty ledger. defaultLimit seeds budgets created
// lazily on first charge.
func NewLedger(defaultLimit uint64) *Ledger {
	return &Ledger{
		budgets:      make(map[BudgetKey]Budget),
		nonces:       make(map[nonceKey]uint64),
		defaultLimit: defaultLimit,
	}
}

// SetBudget installs a budget explicitly, joining with any existing value.
func (l *Ledger) SetBudget(k BudgetKey, b Budget) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.budgets[k]; ok {
		l.budgets[k] = cur.Join(b)
	} else {
		l.budgets[k] = b
	}
}

// Get returns the budget for k, creating it lazily at the given epoch.
func (l *Ledger) Get(k BudgetKey, epoch ids.Epoch) Budget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.getLocked(k, epoch)
}

func (l *Ledger) getLocked(k BudgetKey, epoch ids.Epoch) Budget {
	b, ok := l.budgets[k]
	if !ok {
		b = Budget{Limit: l.defaultLimit, Epoch: epoch}
		l.budgets[k] = b
	}
	return b
}

// HasBudget reports whether a charge of cost would succeed.
func (l *Ledger) HasBudget(k BudgetKey, epoch ids.Epoch, cost uint64) bool {
	return l.Get(k, epoch).CanCharge(cost)
}

// Charge spends cost against k's budget and issues the next receipt. The
// budget mutation commits before the receipt is constructed; if the
// headroom is insufficient no state changes and no receipt exists.
func (l *Ledger) Charge(k BudgetKey, dst ids.AuthorityId, epoch ids.Epoch, cost uint64) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.getLocked(k, epoch)
	if b.Epoch < epoch {
		b = b.Rotate(epoch, l.defaultLimit)
	}
	if !b.CanCharge(cost) {
		return Receipt{}, fault.Newf(fault.PermissionDenied, "FLOW_EXHAUSTED",
			"charge %d exceeds headroom %d", cost, b.Headroom())
	}
	b.Spent += cost
	l.budgets[k] = b

	nk := nonceKey{Context: k.Context, Authority: k.Authority, Epoch: b.Epoch}
	l.nonces[nk]++
	return Receipt{
		Src:     k.Authority,
		Dst:     dst,
		Context: k.Context,
		Epoch:   b.Epoch,
		Nonce:   l.nonces[nk],
		Cost:    cost,
	}, nil
}

// Rotate advances the budget for k to a newer epoch with the given limit.
func (l *Ledger) Rotate(k BudgetKey, epoch ids.Epoch, limit uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.budgets[k]
	if !ok {
		l.budgets[k] = Budget{Limit: limit, Epoch: epoch}
		return
	}
	l.budgets[k] = b.Rotate(epoch, limit)
}

// Join merges another ledger's budgets into this one (pairwise budget
// join; receipt nonces take the max so reissued nonces stay monotonic).
func (l *Ledger) Join(other *Ledger) {
	other.mu.Lock()
	otherBudgets := make(map[BudgetKey]Budget, len(other.budgets))
	for k, v := range other.budgets {
		otherBudgets[k] = v
	}
	otherNonces := make(map[nonceKey]uint64, len(other.nonces))
	for k, v := range other.nonces {
		otherNonces[k] = v
	}
	other.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range otherBudgets {
		if cur, ok := l.budgets[k]; ok {
			l.budgets[k] = cur.Join(v)
		} else {
			l.budgets[k] = v
		}
	}
	for k, v := range otherNonces {
		if v > l.nonces[k] {
			l.nonces[k] = v
		}
	}
}

// DropBelow removes budgets and nonce counters whose epoch is strictly
// below the floor. Called by compaction.
func (l *Ledger) DropBelow(floor ids.Epoch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.budgets {
		if b.Epoch < floor {
			delete(l.budgets, k)
		}
	}
	for k := range l.nonces {
		if k.Epoch < floor {
			delete(l.nonces, k)
		}
	}
}

// View returns an immutable copy of the budgets for guard evaluation.
func (l *Ledger) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := View{budgets: make(map[BudgetKey]Budget, len(l.budgets)), defaultLimit: l.defaultLimit}
	for k, b := range l.budgets {
		v.budgets[k] = b
	}
	return v
}

// View is a point-in-time, read-only picture of a ledger. The guard chain
// evaluates against a View so the chain stays pure.
type View struct {
	budgets      map[BudgetKey]Budget
	defaultLimit uint64
}

// Get returns the budget for k, or the lazy default at the given epoch.
func (v View) Get(k BudgetKey, epoch ids.Epoch) Budget {
	if b, ok := v.budgets[k]; ok {
		return b
	}
	return Budget{Limit: v.defaultLimit, Epoch: epoch}
}

// HasBudget reports whether a charge of cost would succeed, accounting
// for epoch rotation.
func (v View) HasBudget(k BudgetKey, epoch ids.Epoch, cost uint64) bool {
	b := v.Get(k, epoch)
	if b.Epoch < epoch {
		b = b.Rotate(epoch, v.defaultLimit)
	}
	return b.CanCharge(cost)
}
