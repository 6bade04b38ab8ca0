package eligibility

import (
	"context"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/types"
)

// DefaultRecentWindow is how far before a call the latest order may have
// been created.
const DefaultRecentWindow = 36 * time.Hour

// RecentOrderPolicy admits calls from contacts whose latest order was created
// no earlier than Window before the call started, whatever its status.
// Orders created after the call count as recent.
type RecentOrderPolicy struct {
	lookup  OrderLookup
	window  time.Duration
	noOrder bool
	now     func() time.Time
	log     *logger.Logger
}

func NewRecentOrderPolicy(lookup OrderLookup, window time.Duration, includeNoOrder bool, log *logger.Logger) *RecentOrderPolicy {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &RecentOrderPolicy{
		lookup:  lookup,
		window:  window,
		noOrder: includeNoOrder,
		now:     time.Now,
		log:     log.Component("eligibility"),
	}
}

func (p *RecentOrderPolicy) Decide(ctx context.Context, call types.CallRecord, dedup *types.DedupIndex) types.Decision {
	order, d, done := precheck(ctx, p.lookup, call, dedup, p.noOrder, p.log)
	if done {
		return d
	}

	ref := call.StartTime
	if ref.IsZero() {
		ref = p.now()
	}
	cutoff := ref.Add(-p.window)
	log := p.log.WithCall(call).WithField("order_created_at", order.CreatedAt.Format(time.RFC3339))
	if order.CreatedAt.IsZero() || order.CreatedAt.Before(cutoff) {
		log.WithField("reason", types.ReasonNoRecentOrder).Info("call excluded")
		return types.Decision{Reason: types.ReasonNoRecentOrder, Order: order}
	}
	log.WithField("reason", types.ReasonIncluded).Info("call included")
	return types.Decision{Eligible: true, Reason: types.ReasonIncluded, Order: order}
}
