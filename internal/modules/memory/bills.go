package memory

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// BillStore adds match and payment bookkeeping to the generic store.
type BillStore struct {
	*Store[modulesdomain.Bill]
}

func NewBillStore(genID *snowflake.Node) *BillStore {
	return &BillStore{Store: NewStore[modulesdomain.Bill](modulesdomain.ModuleBills, "bill", genID)}
}

func (s *BillStore) UpdateMatch(_ context.Context, id string, match modulesdomain.MatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Op: OpUpdateMatch, ID: id})
	if err := s.failureLocked(OpUpdateMatch, id); err != nil {
		return err
	}
	_, err := s.mutateLocked(id, func(b modulesdomain.Bill) (modulesdomain.Bill, error) {
		m := match
		m.Discrepancies = append([]modulesdomain.Discrepancy(nil), match.Discrepancies...)
		b.Match = &m
		if match.Matched {
			b.Status = modulesdomain.BillStatusMatched
		} else if len(match.Discrepancies) > 0 {
			b.Status = modulesdomain.BillStatusDisputed
		}
		return b, nil
	})
	return err
}

func (s *BillStore) ApplyPayment(_ context.Context, id string, paid, tds int64) (modulesdomain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Op: OpApplyPayment, ID: id, Fields: map[string]any{"paid": paid, "tds": tds}})
	if err := s.failureLocked(OpApplyPayment, id); err != nil {
		return modulesdomain.Bill{}, err
	}
	return s.mutateLocked(id, func(b modulesdomain.Bill) (modulesdomain.Bill, error) {
		if paid < 0 || tds < 0 {
			return b, fmt.Errorf("%w: negative amount", modulesdomain.ErrInvalidRecord)
		}
		if paid+tds > b.Outstanding() {
			return b, modulesdomain.ErrOverpayment
		}
		b.PaidAmount += paid
		b.TDSAmount += tds
		if b.Outstanding() == 0 {
			b.Status = modulesdomain.BillStatusPaid
		} else {
			b.Status = modulesdomain.BillStatusPartiallyPaid
		}
		return b, nil
	})
}
