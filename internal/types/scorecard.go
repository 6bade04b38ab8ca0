package types

// Criterion is one fixed dimension of the sales-quality scorecard.
type Criterion string

const (
	VoiceWarmth        Criterion = "voice_warmth"
	RapportBuilding    Criterion = "rapport_building"
	Qualification      Criterion = "qualification"
	NeedsDiscovery     Criterion = "needs_discovery"
	NeedsBasedProposal Criterion = "needs_based_proposal"
	ProductFeatures    Criterion = "product_features"
	ObjectionRaised    Criterion = "objection_raised"
	ObjectionHandled   Criterion = "objection_handled"
	BundleUpsell       Criterion = "bundle_upsell"
	CrossSell          Criterion = "cross_sell"
	OrderSummaryTotal  Criterion = "order_summary_total"
	DeliveryConfirmed  Criterion = "delivery_confirmed"
	PrepaymentTerms    Criterion = "prepayment_terms"
)

// Criteria is the closed key set, in sheet column order.
var Criteria = []Criterion{
	VoiceWarmth,
	RapportBuilding,
	Qualification,
	NeedsDiscovery,
	NeedsBasedProposal,
	ProductFeatures,
	ObjectionRaised,
	ObjectionHandled,
	BundleUpsell,
	CrossSell,
	OrderSummaryTotal,
	DeliveryConfirmed,
	PrepaymentTerms,
}

func IsCriterion(key string) bool {
	for _, c := range Criteria {
		if string(c) == key {
			return true
		}
	}
	return false
}

const (
	CategoryOrder       = "order"
	CategoryCooperation = "cooperation"
	CategoryOther       = "other"
)

// Scorecard maps every criterion to -1 (not met), 0 (not applicable) or 1 (met).
type Scorecard map[Criterion]int

// NewScorecard returns a scorecard with every criterion at 0.
func NewScorecard() Scorecard {
	s := make(Scorecard, len(Criteria))
	for _, c := range Criteria {
		s[c] = 0
	}
	return s
}

// AnalysisResult is the stored outcome of scoring one transcript.
type AnalysisResult struct {
	Scores      Scorecard `json:"scores"`
	Summary     string    `json:"summary"`
	Category    string    `json:"category"`
	ManagerName string    `json:"manager_name,omitempty"`
}
