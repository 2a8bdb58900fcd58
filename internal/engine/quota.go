package engine

import "fmt"

// productQuota caps how many products one run works on. Products beyond the
// cap are left untouched in the ledger for the next run.
//
// A zero limit means unlimited.
type productQuota struct {
	limit   int
	current int
}

func newProductQuota(limit int) *productQuota {
	return &productQuota{limit: limit}
}

// Take claims one slot and reports whether the product may be worked on.
func (q *productQuota) Take() bool {
	if q.Full() {
		return false
	}
	q.current++
	return true
}

// Full reports whether every slot is claimed.
func (q *productQuota) Full() bool {
	return q.limit > 0 && q.current >= q.limit
}

// String describes the quota for logs.
func (q *productQuota) String() string {
	if q.limit <= 0 {
		return fmt.Sprintf("%d/unlimited", q.current)
	}
	return fmt.Sprintf("%d/%d", q.current, q.limit)
}
