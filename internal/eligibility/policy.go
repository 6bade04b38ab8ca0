// Package eligibility decides which calls are worth scoring.
package eligibility

import (
	"context"
	"strings"

	"callscore-go/internal/logger"
	"callscore-go/internal/types"
)

// Policy decides whether a call enters the pipeline.
type Policy interface {
	Decide(ctx context.Context, call types.CallRecord, dedup *types.DedupIndex) types.Decision
}

// OrderLookup resolves the latest order of a contact. A nil order with a
// nil error means the contact has no orders.
type OrderLookup interface {
	LatestOrder(ctx context.Context, phone string) (*types.Order, error)
}

type Options struct {
	// Allowed status codes. Empty means every status not explicitly excluded.
	Allowed  []string
	Excluded []string
	// IncludeNoOrderHistory admits contacts without any order.
	IncludeNoOrderHistory bool
}

// DefaultOptions returns the deployment's status lists.
func DefaultOptions() Options {
	return Options{Allowed: DefaultAllowedStatuses(), Excluded: DefaultExcludedStatuses()}
}

// OrderHistoryPolicy admits calls by the status of the contact's latest
// order.
type OrderHistoryPolicy struct {
	lookup   OrderLookup
	allowed  map[string]struct{}
	excluded map[string]struct{}
	noOrder  bool
	log      *logger.Logger
}

func NewOrderHistoryPolicy(lookup OrderLookup, opts Options, log *logger.Logger) *OrderHistoryPolicy {
	return &OrderHistoryPolicy{
		lookup:   lookup,
		allowed:  toSet(opts.Allowed),
		excluded: toSet(opts.Excluded),
		noOrder:  opts.IncludeNoOrderHistory,
		log:      log.Component("eligibility"),
	}
}

func (p *OrderHistoryPolicy) Decide(ctx context.Context, call types.CallRecord, dedup *types.DedupIndex) types.Decision {
	order, d, done := precheck(ctx, p.lookup, call, dedup, p.noOrder, p.log)
	if done {
		return d
	}

	log := p.log.WithCall(call).WithField("order_status", order.Status)
	if !p.statusAllowed(order.Status) {
		log.WithField("reason", types.ReasonStatusNotAllowed).Info("call excluded")
		return types.Decision{Reason: types.ReasonStatusNotAllowed, Order: order}
	}
	log.WithField("reason", types.ReasonIncluded).Info("call included")
	return types.Decision{Eligible: true, Reason: types.ReasonIncluded, Order: order}
}

// precheck runs the checks every policy shares: call data, order lookup,
// dedup and missing order history. When done is false the contact has an
// order and the policy decides on it.
func precheck(ctx context.Context, lookup OrderLookup, call types.CallRecord, dedup *types.DedupIndex,
	includeNoOrder bool, plog *logger.Logger) (*types.Order, types.Decision, bool) {

	log := plog.WithCall(call)

	if strings.TrimSpace(call.ContactPhone) == "" || call.Direction == "" {
		log.WithField("reason", types.ReasonMissingCallData).Info("call excluded")
		return nil, types.Decision{Reason: types.ReasonMissingCallData}, true
	}

	order, err := lookup.LatestOrder(ctx, call.ContactPhone)
	if err != nil {
		log.WithField("error", err.Error()).WithField("reason", types.ReasonLookupFailed).Warn("call excluded")
		return nil, types.Decision{Reason: types.ReasonLookupFailed}, true
	}

	if order != nil && dedup.Contains(order.Link) {
		log.WithField("order_link", order.Link).WithField("reason", types.ReasonDuplicateOrder).Info("call excluded")
		return order, types.Decision{Reason: types.ReasonDuplicateOrder, Order: order}, true
	}

	if order == nil {
		if includeNoOrder {
			log.WithField("reason", types.ReasonIncluded).Info("call included without order history")
			return nil, types.Decision{Eligible: true, Reason: types.ReasonIncluded}, true
		}
		log.WithField("reason", types.ReasonNoOrderHistory).Info("call excluded")
		return nil, types.Decision{Reason: types.ReasonNoOrderHistory}, true
	}
	return order, types.Decision{}, false
}

// statusAllowed: the exclude list wins over the allow list.
func (p *OrderHistoryPolicy) statusAllowed(status string) bool {
	status = strings.TrimSpace(status)
	if _, bad := p.excluded[status]; bad {
		return false
	}
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[status]
	return ok
}

func toSet(codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}
