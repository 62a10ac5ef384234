package rate

import (
	"math"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/Yoga07/safe-farming/types/farming"
)

// StorageRewards prices work for stored data: one work unit per byte plus a
// base cost per stored item.
type StorageRewards struct {
	baseCost atomic.Uint64
}

func NewStorageRewards(baseCost uint64) *StorageRewards {
	s := &StorageRewards{}
	s.baseCost.Store(baseCost)
	return s
}

// SetBaseCost updates the base cost of work.
func (s *StorageRewards) SetBaseCost(baseCost uint64) {
	s.baseCost.Store(baseCost)
}

func (s *StorageRewards) BaseCost() uint64 {
	return s.baseCost.Load()
}

// WorkCost returns the work units for storing numBytes.
func (s *StorageRewards) WorkCost(numBytes uint64) (uint64, error) {
	base := s.baseCost.Load()
	if numBytes > math.MaxUint64-base {
		return 0, errors.Wrap(farming.ErrExcessiveValue, "work cost")
	}
	return numBytes + base, nil
}

// TotalReward scales the work cost by rate, rounding half away from zero.
func (s *StorageRewards) TotalReward(
	rate decimal.Decimal,
	workCost uint64,
) (uint64, error) {
	if rate.IsNegative() {
		return 0, errors.Wrap(farming.ErrInvalidAmount, "total reward")
	}

	amount := rate.Mul(decimal.NewFromUint64(workCost)).Round(0)
	if amount.GreaterThan(decimal.NewFromUint64(math.MaxUint64)) {
		return 0, errors.Wrap(farming.ErrExcessiveValue, "total reward")
	}
	return amount.BigInt().Uint64(), nil
}

type share struct {
	account farming.AccountID
	work    uint64
	amount  uint64
}

// Distribute splits totalReward between accounts in proportion to their
// accumulated work. The shares always sum to totalReward: a rounding
// shortfall goes to the account with the most work and a surplus is taken
// back one unit at a time from the smallest shares. Accounts without work
// receive zero.
func Distribute(
	totalReward uint64,
	accountsWork map[farming.AccountID]uint64,
) (map[farming.AccountID]uint64, error) {
	allWork := decimal.Zero
	for _, work := range accountsWork {
		allWork = allWork.Add(decimal.NewFromUint64(work))
	}

	out := make(map[farming.AccountID]uint64, len(accountsWork))
	if allWork.IsZero() {
		if totalReward > 0 {
			return nil, errors.Wrap(
				errors.New("no work to distribute against"),
				"distribute",
			)
		}
		for account := range accountsWork {
			out[account] = 0
		}
		return out, nil
	}

	total := decimal.NewFromUint64(totalReward)
	shares := make([]*share, 0, len(accountsWork))
	var sum uint64
	for account, work := range accountsWork {
		amount := total.Mul(decimal.NewFromUint64(work)).DivRound(allWork, 0)
		s := &share{account: account, work: work, amount: amount.BigInt().Uint64()}
		shares = append(shares, s)
		sum += s.amount
	}

	// Smallest share first, ties broken by account for determinism.
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].amount != shares[j].amount {
			return shares[i].amount < shares[j].amount
		}
		if shares[i].work != shares[j].work {
			return shares[i].work < shares[j].work
		}
		return shares[i].account < shares[j].account
	})

	switch {
	case sum < totalReward:
		shares[len(shares)-1].amount += totalReward - sum
	case sum > totalReward:
		diff := sum - totalReward
		for diff > 0 {
			for _, s := range shares {
				if diff == 0 {
					break
				}
				if s.amount >= 1 {
					s.amount--
					diff--
				}
			}
		}
	}

	sum = 0
	for _, s := range shares {
		out[s.account] = s.amount
		sum += s.amount
	}
	if sum != totalReward {
		return nil, errors.Errorf(
			"distribute: total reward %d, shares sum %d",
			totalReward,
			sum,
		)
	}

	return out, nil
}
