package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/types"
)

// Form entry keys besides the criterion keys.
const (
	FieldNumber     = "number"
	FieldName       = "name"
	FieldPhone      = "phone"
	FieldDate       = "date"
	FieldCallType   = "call_type"
	FieldOrderLink  = "order_link"
	FieldTranscript = "transcript"
	FieldRecording  = "recording"
)

var ErrFormNotConfigured = errors.New("sinks: form url not configured")

// DefaultFormEntries maps row fields to the entry ids of the scoring form.
func DefaultFormEntries() map[string]string {
	return map[string]string{
		FieldNumber:                      "entry.1684791713",
		FieldName:                        "entry.730205749",
		FieldPhone:                       "entry.1794131010",
		FieldDate:                        "entry.887244152",
		string(types.VoiceWarmth):        "entry.762756437",
		string(types.RapportBuilding):    "entry.2128803646",
		string(types.Qualification):      "entry.1587001077",
		string(types.NeedsDiscovery):     "entry.298145485",
		string(types.NeedsBasedProposal): "entry.1475320463",
		string(types.ProductFeatures):    "entry.427767033",
		string(types.ObjectionRaised):    "entry.374927679",
		string(types.ObjectionHandled):   "entry.1984762538",
		string(types.BundleUpsell):       "entry.1050706243",
		string(types.CrossSell):          "entry.866877333",
		string(types.OrderSummaryTotal):  "entry.1544107090",
		string(types.DeliveryConfirmed):  "entry.1922686497",
		string(types.PrepaymentTerms):    "entry.257021647",
	}
}

// FormSink posts rows to a Google Form formResponse endpoint. Fields without
// an entry id are not sent.
type FormSink struct {
	url     string
	entries map[string]string
	http    *http.Client
	policy  retry.Policy
	log     *logger.Logger
}

func NewFormSink(formURL string, entries map[string]string, log *logger.Logger, policy retry.Policy) *FormSink {
	if len(entries) == 0 {
		entries = DefaultFormEntries()
	}
	return &FormSink{
		url:     strings.TrimSpace(formURL),
		entries: entries,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  policy,
		log:     log.Component("form-sink"),
	}
}

// Values builds the form payload for a row.
func (s *FormSink) Values(row Row) url.Values {
	v := url.Values{}
	set := func(field, value string) {
		if id := s.entries[field]; id != "" && value != "" {
			v.Set(id, value)
		}
	}
	set(FieldNumber, strconv.Itoa(row.Number))
	set(FieldName, row.Manager)
	set(FieldPhone, row.Phone)
	set(FieldDate, row.Date)
	set(FieldCallType, row.CallType)
	set(FieldOrderLink, row.OrderLink)
	set(FieldTranscript, row.Transcript)
	set(FieldRecording, row.RecordingURL)
	for _, c := range types.Criteria {
		set(string(c), strconv.Itoa(row.Scores[c]))
	}
	return v
}

func (s *FormSink) Submit(ctx context.Context, row Row) error {
	if s.url == "" {
		return ErrFormNotConfigured
	}
	payload := s.Values(row).Encode()
	err := s.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := s.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return retry.CheckStatus(resp.StatusCode, body)
	}, func(err error, attempt int, next time.Duration) {
		s.log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("form submit failed, retrying")
	})
	if err != nil {
		return fmt.Errorf("submit form row %d: %w", row.Number, err)
	}
	return nil
}
