// Package aggregator folds per-call outcomes into a batch summary.
package aggregator

import "callscore-go/internal/types"

// Outcome is how far one call got through the pipeline.
type Outcome struct {
	CommunicationID     int64        `json:"communication_id"`
	Reason              types.Reason `json:"reason"`
	TooShort            bool         `json:"too_short,omitempty"`
	Downloaded          bool         `json:"downloaded,omitempty"`
	TranscriptionFailed bool         `json:"transcription_failed,omitempty"`
	Analyzed            bool         `json:"analyzed,omitempty"`
	AnalysisFailed      bool         `json:"analysis_failed,omitempty"`
	Category            string       `json:"category,omitempty"`
	Scored              bool         `json:"scored,omitempty"`
	Duplicate           bool         `json:"duplicate,omitempty"`
	Messaged            bool         `json:"messaged,omitempty"`
	AlreadyDelivered    bool         `json:"already_delivered,omitempty"`
	DeliveryFailed      bool         `json:"delivery_failed,omitempty"`
	Err                 string       `json:"error,omitempty"`
}

type Summary struct {
	Calls               int                  `json:"calls"`
	ByReason            map[types.Reason]int `json:"by_reason"`
	ByCategory          map[string]int       `json:"by_category"`
	TooShort            int                  `json:"too_short"`
	Downloaded          int                  `json:"downloaded"`
	TranscriptionErrors int                  `json:"transcription_errors"`
	Analyzed            int                  `json:"analyzed"`
	AnalysisFailed      int                  `json:"analysis_failed"`
	Scored              int                  `json:"scored"`
	Duplicates          int                  `json:"duplicates"`
	Messaged            int                  `json:"messaged"`
	AlreadyDelivered    int                  `json:"already_delivered"`
	DeliveryFailures    int                  `json:"delivery_failures"`
}

func Aggregate(outcomes []Outcome) Summary {
	s := Summary{
		Calls:      len(outcomes),
		ByReason:   map[types.Reason]int{},
		ByCategory: map[string]int{},
	}
	for _, o := range outcomes {
		if o.Reason != "" {
			s.ByReason[o.Reason]++
		}
		if o.Category != "" {
			s.ByCategory[o.Category]++
		}
		s.TooShort += b2i(o.TooShort)
		s.Downloaded += b2i(o.Downloaded)
		s.TranscriptionErrors += b2i(o.TranscriptionFailed)
		s.Analyzed += b2i(o.Analyzed)
		s.AnalysisFailed += b2i(o.AnalysisFailed)
		s.Scored += b2i(o.Scored)
		s.Duplicates += b2i(o.Duplicate)
		s.Messaged += b2i(o.Messaged)
		s.AlreadyDelivered += b2i(o.AlreadyDelivered)
		s.DeliveryFailures += b2i(o.DeliveryFailed)
	}
	return s
}

// Eligible is the number of calls the filter admitted.
func (s Summary) Eligible() int {
	return s.ByReason[types.ReasonIncluded]
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
