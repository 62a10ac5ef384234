// Package ledger holds the replicated reward state of a farming replica: the
// network usage counter and a PN-Counter balance per account, plus the sets
// that make reward events and payout certificates apply at most once.
package ledger

import (
	"bytes"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/node/farming/crdt"
	"github.com/Yoga07/safe-farming/types/farming"
)

// RewardLedger tracks credited and debited rewards per account, and the work
// each account was rewarded for. Credits are purely additive; debits only
// happen through payout certificates and are keyed by proposal. Every
// component merges as a join, so replicas converge regardless of delivery
// order or duplication.
type RewardLedger struct {
	logger    *zap.Logger
	clock     clockwork.Clock
	retention time.Duration

	mu       sync.RWMutex
	accounts map[farming.AccountID]*crdt.PNCounter
	// Rewarded items per account, slotted by replica.
	work   map[farming.AccountID]*crdt.GCounter
	events *crdt.GSet[farming.EventID]
	// Applied proposal ids mapped to the expiry of their certificate.
	applied map[farming.ProposalID]time.Time
}

// NewRewardLedger creates an empty ledger. Applied proposal ids are kept for
// retention past their certificate's expiry; certificates older than that
// are refused as stale.
func NewRewardLedger(
	logger *zap.Logger,
	clock clockwork.Clock,
	retention time.Duration,
) *RewardLedger {
	return &RewardLedger{
		logger:    logger,
		clock:     clock,
		retention: retention,
		accounts:  make(map[farming.AccountID]*crdt.PNCounter),
		work:      make(map[farming.AccountID]*crdt.GCounter),
		events:    crdt.NewGSet[farming.EventID](),
		applied:   make(map[farming.ProposalID]time.Time),
	}
}

func (l *RewardLedger) account(id farming.AccountID) *crdt.PNCounter {
	counter, ok := l.accounts[id]
	if !ok {
		counter = crdt.NewPNCounter()
		l.accounts[id] = counter
		l.work[id] = crdt.NewGCounter()
		accountsTracked.Set(float64(len(l.accounts)))
	}
	return counter
}

// AddAccount registers an account with work already done for it, counted in
// replica's slot. A known account returns ErrAccountExists.
func (l *RewardLedger) AddAccount(
	account farming.AccountID,
	work uint64,
	replica farming.ReplicaID,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[account]; ok {
		return errors.Wrapf(farming.ErrAccountExists, "add account: %s", account)
	}
	l.account(account)
	if err := l.work[account].Increment(replica, work); err != nil {
		delete(l.accounts, account)
		delete(l.work, account)
		accountsTracked.Set(float64(len(l.accounts)))
		return errors.Wrap(err, "add account")
	}
	return nil
}

// addWork counts one rewarded item for account. Work saturates rather than
// failing a credit that already happened.
func (l *RewardLedger) addWork(account farming.AccountID, replica farming.ReplicaID) {
	l.account(account)
	if err := l.work[account].Increment(replica, 1); err != nil {
		l.logger.Warn(
			"work counter saturated",
			zap.String("account", string(account)),
			zap.Error(err),
		)
	}
}

// Credit adds amount to the account's credited slot for replica.
func (l *RewardLedger) Credit(
	account farming.AccountID,
	amount uint64,
	replica farming.ReplicaID,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return errors.Wrap(l.credit(account, amount, replica), "credit")
}

func (l *RewardLedger) credit(
	account farming.AccountID,
	amount uint64,
	replica farming.ReplicaID,
) error {
	if amount == 0 {
		return nil
	}
	if err := l.account(account).Credit(replica, amount); err != nil {
		return err
	}
	rewardsCredited.WithLabelValues(string(replica)).Add(float64(amount))
	return nil
}

// Accumulate credits the event's account once per event id. A repeated id
// returns ErrDuplicateEvent and leaves the ledger untouched.
func (l *RewardLedger) Accumulate(
	event *farming.RewardEvent,
	amount uint64,
	replica farming.ReplicaID,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.events.Has(event.ID) {
		duplicateEvents.WithLabelValues(string(replica)).Inc()
		return errors.Wrap(farming.ErrDuplicateEvent, "accumulate")
	}
	if err := l.credit(event.Account, amount, replica); err != nil {
		return errors.Wrap(err, "accumulate")
	}
	l.addWork(event.Account, replica)
	l.events.Add(event.ID)

	l.logger.Debug(
		"accumulated reward",
		zap.String("event", event.ID.String()),
		zap.String("account", string(event.Account)),
		zap.Uint64("amount", amount),
	)
	return nil
}

// Distribute credits several accounts for one rewarded item, once per id.
// Either every account is credited or none is.
func (l *RewardLedger) Distribute(
	id farming.EventID,
	amounts map[farming.AccountID]uint64,
	replica farming.ReplicaID,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.events.Has(id) {
		duplicateEvents.WithLabelValues(string(replica)).Inc()
		return errors.Wrap(farming.ErrDuplicateEvent, "distribute")
	}

	for account, amount := range amounts {
		current := uint64(0)
		if counter, ok := l.accounts[account]; ok {
			current = counter.Credited.Get(replica)
		}
		if amount > math.MaxUint64-current {
			return errors.Wrap(farming.ErrExcessiveValue, "distribute")
		}
	}
	for account, amount := range amounts {
		if err := l.credit(account, amount, replica); err != nil {
			return errors.Wrap(err, "distribute")
		}
		if amount > 0 {
			l.addWork(account, replica)
		}
	}
	l.events.Add(id)
	return nil
}

// Balance returns credited minus debited for the account, never below zero.
func (l *RewardLedger) Balance(account farming.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counter, ok := l.accounts[account]
	if !ok {
		return 0
	}
	return counter.Value()
}

// Accounts lists the accounts holding a counter, sorted.
func (l *RewardLedger) Accounts() []farming.AccountID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]farming.AccountID, 0, len(l.accounts))
	for account := range l.accounts {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Work returns the rewarded work of every known account.
func (l *RewardLedger) Work() map[farming.AccountID]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[farming.AccountID]uint64, len(l.work))
	for account, counter := range l.work {
		out[account] = counter.Value()
	}
	return out
}

// HasEvent reports whether the event was already accumulated.
func (l *RewardLedger) HasEvent(id farming.EventID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events.Has(id)
}

// IsApplied reports whether a certificate for the proposal was debited.
func (l *RewardLedger) IsApplied(id farming.ProposalID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.applied[id]
	return ok
}

// LastSequence returns the highest sequence among applied proposals raised
// by replica, zero when none is retained.
func (l *RewardLedger) LastSequence(replica farming.ReplicaID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var last uint64
	for id := range l.applied {
		if id.Replica == replica && id.Sequence > last {
			last = id.Sequence
		}
	}
	return last
}

// ProposeDebit checks that amount can be paid from the account and returns
// an unbound proposal for it. It never changes the ledger.
func (l *RewardLedger) ProposeDebit(
	account farming.AccountID,
	amount uint64,
) (*farming.PayoutProposal, error) {
	return l.ProposeDebitWithReserve(account, amount, 0)
}

// ProposeDebitWithReserve is ProposeDebit with reserved already bound to
// other in-flight proposals for the same account.
func (l *RewardLedger) ProposeDebitWithReserve(
	account farming.AccountID,
	amount uint64,
	reserved uint64,
) (*farming.PayoutProposal, error) {
	if amount == 0 {
		return nil, errors.Wrap(farming.ErrInvalidAmount, "propose debit")
	}

	balance := l.Balance(account)
	available := uint64(0)
	if balance > reserved {
		available = balance - reserved
	}
	if amount > available {
		return nil, errors.Wrapf(
			farming.ErrInsufficientBalance,
			"propose debit: %d requested, %d available",
			amount,
			available,
		)
	}

	return &farming.PayoutProposal{
		Account:  account,
		Amount:   amount,
		Snapshot: balance,
	}, nil
}

// ApplyCertificate debits the certificate's amount under its proposal id,
// exactly once. It reports whether the debit happened here; a certificate
// already applied here or on a merged replica returns false. Replicas that
// apply the same certificate before merging record the same debit slot, so
// the merged balance carries it once. The certificate's signature must be
// verified by the caller.
func (l *RewardLedger) ApplyCertificate(
	cert *farming.PayoutCertificate,
	replica farming.ReplicaID,
) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.applied[cert.ProposalID]; ok {
		return false, nil
	}

	if l.clock.Now().After(cert.Expiry.Add(l.retention)) {
		return false, errors.Wrapf(
			farming.ErrCertificateStale,
			"apply certificate: %s",
			cert.ProposalID,
		)
	}

	if cert.Amount == 0 {
		return false, errors.Wrap(farming.ErrInvalidAmount, "apply certificate")
	}
	counter, ok := l.accounts[cert.Account]
	balance := uint64(0)
	if ok {
		balance = counter.Value()
	}
	if cert.Amount > balance {
		return false, errors.Wrapf(
			farming.ErrInsufficientBalance,
			"apply certificate: %d exceeds balance %d",
			cert.Amount,
			balance,
		)
	}

	if err := counter.Debit(cert.ProposalID.String(), cert.Amount); err != nil {
		return false, errors.Wrap(err, "apply certificate")
	}
	l.applied[cert.ProposalID] = cert.Expiry
	appliedTracked.Set(float64(len(l.applied)))
	certificatesApplied.WithLabelValues(string(replica)).Inc()
	amountDebited.WithLabelValues(string(replica)).Add(float64(cert.Amount))

	l.logger.Info(
		"applied payout certificate",
		zap.String("proposal", cert.ProposalID.String()),
		zap.String("account", string(cert.Account)),
		zap.Uint64("amount", cert.Amount),
	)
	return true, nil
}

// Merge joins other into l. Other is copied under its own lock first, so two
// ledgers can merge into each other concurrently.
func (l *RewardLedger) Merge(other *RewardLedger) {
	if other == nil || other == l {
		return
	}
	remote := other.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, counter := range remote.accounts {
		l.account(id).Merge(counter)
		l.work[id].Merge(remote.work[id])
	}
	l.events.Merge(remote.events)
	for id, expiry := range remote.applied {
		if current, ok := l.applied[id]; !ok || expiry.After(current) {
			l.applied[id] = expiry
		}
	}
	appliedTracked.Set(float64(len(l.applied)))
	merges.WithLabelValues("ledger").Inc()
}

// Prune forgets applied proposal ids whose certificates are past retention.
// Such certificates are refused as stale, so forgetting them cannot allow a
// second debit.
func (l *RewardLedger) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	pruned := 0
	for id, expiry := range l.applied {
		if now.After(expiry.Add(l.retention)) {
			delete(l.applied, id)
			pruned++
		}
	}
	appliedTracked.Set(float64(len(l.applied)))
	return pruned
}

// Clone returns a deep copy sharing the logger, clock and retention.
func (l *RewardLedger) Clone() *RewardLedger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := NewRewardLedger(l.logger, l.clock, l.retention)
	for id, counter := range l.accounts {
		c.accounts[id] = counter.Clone()
		c.work[id] = l.work[id].Clone()
	}
	c.events = l.events.Clone()
	for id, expiry := range l.applied {
		c.applied[id] = expiry
	}
	return c
}

// Equal compares replicated state: counters, events and applied ids.
func (l *RewardLedger) Equal(other *RewardLedger) bool {
	a, b := l.Clone(), other.Clone()

	ids := map[farming.AccountID]struct{}{}
	for id := range a.accounts {
		ids[id] = struct{}{}
	}
	for id := range b.accounts {
		ids[id] = struct{}{}
	}
	for id := range ids {
		ca, ok := a.accounts[id]
		if !ok {
			ca = crdt.NewPNCounter()
		}
		cb, ok := b.accounts[id]
		if !ok {
			cb = crdt.NewPNCounter()
		}
		if !ca.Equal(cb) {
			return false
		}
		wa, ok := a.work[id]
		if !ok {
			wa = crdt.NewGCounter()
		}
		wb, ok := b.work[id]
		if !ok {
			wb = crdt.NewGCounter()
		}
		if !wa.Equal(wb) {
			return false
		}
	}

	if !a.events.Equal(b.events) || len(a.applied) != len(b.applied) {
		return false
	}
	for id, expiry := range a.applied {
		if other, ok := b.applied[id]; !ok || !other.Equal(expiry) {
			return false
		}
	}
	return true
}

// WriteCanonical appends the ledger, type prefix included, to buf. Accounts,
// events and applied ids are written in sorted order.
func (l *RewardLedger) WriteCanonical(buf *bytes.Buffer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if err := farming.WriteTypePrefix(buf, farming.RewardLedgerType); err != nil {
		return err
	}

	ids := make([]farming.AccountID, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := farming.WriteCount(buf, len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := farming.WriteBytes(buf, []byte(id)); err != nil {
			return err
		}
		if err := l.accounts[id].WriteCanonical(buf); err != nil {
			return err
		}
		if err := l.work[id].WriteCanonical(buf); err != nil {
			return err
		}
	}

	events := l.events.Items()
	sort.Slice(events, func(i, j int) bool {
		return bytes.Compare(events[i][:], events[j][:]) < 0
	})
	if err := farming.WriteCount(buf, len(events)); err != nil {
		return err
	}
	for _, id := range events {
		if _, err := buf.Write(id[:]); err != nil {
			return err
		}
	}

	applied := make([]farming.ProposalID, 0, len(l.applied))
	for id := range l.applied {
		applied = append(applied, id)
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].Less(applied[j]) })
	if err := farming.WriteCount(buf, len(applied)); err != nil {
		return err
	}
	for _, id := range applied {
		if err := farming.WriteProposalID(buf, id); err != nil {
			return err
		}
		if err := farming.WriteTime(buf, l.applied[id]); err != nil {
			return err
		}
	}

	return nil
}

// ReadCanonical replaces the ledger's state with one written by
// WriteCanonical.
func (l *RewardLedger) ReadCanonical(buf *bytes.Buffer) error {
	if err := farming.ReadTypePrefix(buf, farming.RewardLedgerType); err != nil {
		return err
	}

	// account length prefix + pn counter prefixes + work counter prefixes
	n, err := farming.ReadCount(buf, 4+4+2*(4+4)+(4+4))
	if err != nil {
		return err
	}
	accounts := make(map[farming.AccountID]*crdt.PNCounter, n)
	work := make(map[farming.AccountID]*crdt.GCounter, n)
	for i := 0; i < n; i++ {
		id, err := farming.ReadBytes(buf)
		if err != nil {
			return err
		}
		counter := crdt.NewPNCounter()
		if err := counter.ReadCanonical(buf); err != nil {
			return err
		}
		worked := crdt.NewGCounter()
		if err := worked.ReadCanonical(buf); err != nil {
			return err
		}
		accounts[farming.AccountID(id)] = counter
		work[farming.AccountID(id)] = worked
	}

	n, err = farming.ReadCount(buf, len(farming.EventID{}))
	if err != nil {
		return err
	}
	events := crdt.NewGSet[farming.EventID]()
	for i := 0; i < n; i++ {
		var id farming.EventID
		if _, err := io.ReadFull(buf, id[:]); err != nil {
			return err
		}
		events.Add(id)
	}

	// replica length prefix + sequence + expiry
	n, err = farming.ReadCount(buf, 4+8+8)
	if err != nil {
		return err
	}
	applied := make(map[farming.ProposalID]time.Time, n)
	for i := 0; i < n; i++ {
		id, err := farming.ReadProposalID(buf)
		if err != nil {
			return err
		}
		if applied[id], err = farming.ReadTime(buf); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = accounts
	l.work = work
	l.events = events
	l.applied = applied
	accountsTracked.Set(float64(len(l.accounts)))
	appliedTracked.Set(float64(len(l.applied)))
	return nil
}

func (l *RewardLedger) ToCanonicalBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := l.WriteCanonical(buf); err != nil {
		return nil, errors.Wrap(err, "to canonical bytes")
	}
	return buf.Bytes(), nil
}

func (l *RewardLedger) FromCanonicalBytes(data []byte) error {
	if err := l.ReadCanonical(bytes.NewBuffer(data)); err != nil {
		return errors.Wrap(err, "from canonical bytes")
	}
	return nil
}
