// Package matcher pairs verifying orders against a batch of observed credit
// events. It is pure: callers apply the results.
package matcher

import (
	"math"
	"sort"

	orderdomain "github.com/smallbiznis/payqr/internal/order/domain"
	passbookdomain "github.com/smallbiznis/payqr/internal/passbook/domain"
)

// Epsilon is the allowed absolute amount difference; displayed passbook
// amounts may be rounded, so a full currency unit of slack is accepted.
const Epsilon = 1.0

// Result pairs one order with one credit event. Within a batch each order and
// each event appear in at most one result.
type Result struct {
	OrderID string
	Event   passbookdomain.CreditEvent
}

// Match pairs orders to events greedily, oldest order first. An exact
// reference match beats amount-only candidates for that order; otherwise the
// first unclaimed event within Epsilon wins. Orders with identical amounts
// are served in submission order against available events; indistinguishable
// events resolve to whichever comes first in the batch.
func Match(orders []orderdomain.Order, events []passbookdomain.CreditEvent) []Result {
	if len(orders) == 0 || len(events) == 0 {
		return nil
	}

	sorted := make([]orderdomain.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.MarkedPaidAt != nil && b.MarkedPaidAt != nil && !a.MarkedPaidAt.Equal(*b.MarkedPaidAt):
			return a.MarkedPaidAt.Before(*b.MarkedPaidAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})

	claimed := make([]bool, len(events))
	var results []Result
	for _, order := range sorted {
		idx := pickEvent(order, events, claimed)
		if idx < 0 {
			continue
		}
		claimed[idx] = true
		results = append(results, Result{OrderID: order.ID, Event: events[idx]})
	}
	return results
}

func pickEvent(order orderdomain.Order, events []passbookdomain.CreditEvent, claimed []bool) int {
	if order.Reference != "" {
		for i, event := range events {
			if !claimed[i] && event.Reference == order.Reference {
				return i
			}
		}
	}
	for i, event := range events {
		if !claimed[i] && math.Abs(event.Amount-order.Amount) < Epsilon {
			return i
		}
	}
	return -1
}
