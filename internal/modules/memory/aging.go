package memory

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/procurelink/internal/clock"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// Aging bucket labels, by days past due.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1_30"
	Bucket31To60  = "31_60"
	Bucket61To90  = "61_90"
	BucketOver90  = "over_90"
)

// Aging computes payables aging from the bill store on every refresh.
type Aging struct {
	bills *BillStore
	clock clock.Clock

	mu        sync.Mutex
	snapshots map[string]modulesdomain.AgingSnapshot
	refreshes map[string]int
}

func NewAging(bills *BillStore, clk clock.Clock) *Aging {
	if clk == nil {
		clk = clock.System()
	}
	return &Aging{
		bills:     bills,
		clock:     clk,
		snapshots: map[string]modulesdomain.AgingSnapshot{},
		refreshes: map[string]int{},
	}
}

func (a *Aging) Refresh(ctx context.Context, vendorID string) (modulesdomain.AgingSnapshot, error) {
	bills, err := a.bills.ListByVendor(ctx, vendorID)
	if err != nil {
		return modulesdomain.AgingSnapshot{}, err
	}

	now := a.clock.Now()
	buckets := []modulesdomain.AgingBucket{
		{Label: BucketCurrent},
		{Label: Bucket1To30},
		{Label: Bucket31To60},
		{Label: Bucket61To90},
		{Label: BucketOver90},
	}
	snapshot := modulesdomain.AgingSnapshot{VendorID: vendorID, RefreshedAt: now}
	for _, bill := range bills {
		outstanding := bill.Outstanding()
		if outstanding == 0 {
			continue
		}
		idx := bucketIndex(-modulesdomain.DaysUntil(bill.DueDate, now))
		buckets[idx].Outstanding += outstanding
		buckets[idx].Bills++
		snapshot.TotalOutstanding += outstanding
	}
	snapshot.Buckets = buckets

	a.mu.Lock()
	a.snapshots[vendorID] = snapshot
	a.refreshes[vendorID]++
	a.mu.Unlock()
	return snapshot, nil
}

func (a *Aging) MSMEStatus(bill modulesdomain.Bill, now time.Time) modulesdomain.MSMEStatus {
	return modulesdomain.EvaluateMSMEStatus(bill, now)
}

// Snapshot returns the last refreshed snapshot for a vendor.
func (a *Aging) Snapshot(vendorID string) (modulesdomain.AgingSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.snapshots[vendorID]
	return s, ok
}

func (a *Aging) RefreshCount(vendorID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshes[vendorID]
}

func bucketIndex(daysPastDue int) int {
	switch {
	case daysPastDue <= 0:
		return 0
	case daysPastDue <= 30:
		return 1
	case daysPastDue <= 60:
		return 2
	case daysPastDue <= 90:
		return 3
	default:
		return 4
	}
}
