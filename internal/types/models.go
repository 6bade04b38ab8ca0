package types

import (
	"encoding/json"
	"time"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallRecord is one call as reported by the telephony provider.
type CallRecord struct {
	CommunicationID int64           `json:"communication_id"`
	ContactPhone    string          `json:"contact_phone"`
	Direction       string          `json:"direction"`
	StartTime       time.Time       `json:"start_time"`
	DurationSec     int             `json:"duration_sec"`
	RecordIDs       []string        `json:"record_ids"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// CallWindow is the time range a run covers. BatchKey namespaces every
// artifact produced for calls in the window.
type CallWindow struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	BatchKey string    `json:"batch_key"`
}

// Order is the latest CRM order resolved for a contact.
type Order struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	ManagerID  int64     `json:"manager_id,omitempty"`
	CustomerID int64     `json:"customer_id,omitempty"`
	Link       string    `json:"link"`
}

type Reason string

const (
	ReasonMissingCallData  Reason = "excluded-missing-call-data"
	ReasonNoOrderHistory   Reason = "excluded-no-order-history"
	ReasonStatusNotAllowed Reason = "excluded-order-status-not-allowed"
	ReasonNoRecentOrder    Reason = "excluded-no-recent-order"
	ReasonDuplicateOrder   Reason = "excluded-duplicate-order"
	ReasonLookupFailed     Reason = "excluded-order-lookup-failed"
	ReasonIncluded         Reason = "included"
)

// Decision is the eligibility verdict for a single call. Order is set when
// the lookup resolved one, whatever the verdict.
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   Reason `json:"reason"`
	Order    *Order `json:"order,omitempty"`
}

// DedupIndex holds the order links already delivered to the scoring sink.
type DedupIndex struct {
	Links map[string]struct{}
	Rows  int
}

func NewDedupIndex(links []string, rows int) *DedupIndex {
	idx := &DedupIndex{Links: make(map[string]struct{}, len(links)), Rows: rows}
	for _, l := range links {
		if l != "" {
			idx.Links[l] = struct{}{}
		}
	}
	return idx
}

// Contains reports whether link was delivered before. A nil index never
// contains anything.
func (d *DedupIndex) Contains(link string) bool {
	if d == nil || link == "" {
		return false
	}
	_, ok := d.Links[link]
	return ok
}

func (d *DedupIndex) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Links)
}
