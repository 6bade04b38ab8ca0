package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"callscore-go/internal/logger"
	"callscore-go/internal/types"
)

func callAt(phone string, start time.Time) types.CallRecord {
	c := call(phone, types.DirectionInbound)
	c.StartTime = start
	return c
}

func TestRecentOrderPolicy(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	created := func(ago time.Duration) *types.Order {
		o := order("send-to-delivery", "crm/9")
		o.CreatedAt = start.Add(-ago)
		return o
	}
	cases := []struct {
		name   string
		order  *types.Order
		reason types.Reason
	}{
		{"created an hour before", created(time.Hour), types.ReasonIncluded},
		{"created right at the edge", created(36 * time.Hour), types.ReasonIncluded},
		{"created after the call", created(-2 * time.Hour), types.ReasonIncluded},
		{"too old", created(37 * time.Hour), types.ReasonNoRecentOrder},
		{"no creation time", order("new", "crm/9"), types.ReasonNoRecentOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := &fakeLookup{orders: map[string]*types.Order{"79001112233": tc.order}}
			p := NewRecentOrderPolicy(lookup, 0, false, logger.Discard())

			d := p.Decide(context.Background(), callAt("79001112233", start), nil)
			assert.Equal(t, tc.reason, d.Reason)
			assert.Equal(t, tc.reason == types.ReasonIncluded, d.Eligible)
			assert.NotNil(t, d.Order)
		})
	}
}

func TestRecentOrderPolicySharesPrechecks(t *testing.T) {
	recent := &types.Order{Status: "new", Link: "crm/9", CreatedAt: time.Now()}
	lookup := &fakeLookup{orders: map[string]*types.Order{"79001112233": recent}}
	p := NewRecentOrderPolicy(lookup, time.Hour, false, logger.Discard())

	d := p.Decide(context.Background(), call("", types.DirectionInbound), nil)
	assert.Equal(t, types.ReasonMissingCallData, d.Reason)

	d = p.Decide(context.Background(), call("79001112233", types.DirectionInbound), types.NewDedupIndex([]string{"crm/9"}, 1))
	assert.Equal(t, types.ReasonDuplicateOrder, d.Reason)

	d = p.Decide(context.Background(), call("79990000000", types.DirectionOutbound), nil)
	assert.Equal(t, types.ReasonNoOrderHistory, d.Reason)

	// no start time: measured from now
	d = p.Decide(context.Background(), call("79001112233", types.DirectionInbound), nil)
	assert.True(t, d.Eligible)
}
