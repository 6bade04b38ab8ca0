// Package telephony fetches call metadata and recordings from the UIS data API.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/types"
)

const (
	reportMethod     = "get.calls_report"
	reportTimeLayout = "2006-01-02 15:04:05"
	defaultPageSize  = 1000
	// maxReportPages bounds paging against a provider that ignores offset.
	maxReportPages = 200
)

var (
	// ErrNotConfigured is returned when no API token is set.
	ErrNotConfigured = errors.New("telephony: api token not configured")
	// ErrMalformedResponse covers payloads whose shape is not the documented one.
	ErrMalformedResponse = errors.New("telephony: malformed response")
)

var reportFields = []string{
	"id",
	"communication_id",
	"contact_phone_number",
	"direction",
	"start_time",
	"total_duration",
	"call_records",
}

type Config struct {
	APIURL   string
	MediaURL string
	Token    string
	PageSize int
}

type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
	log    *logger.Logger
	loc    *time.Location
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(cl *Client) { cl.policy = p }
}

// WithLocation sets the timezone report timestamps are expressed in.
func WithLocation(loc *time.Location) Option {
	return func(cl *Client) {
		if loc != nil {
			cl.loc = loc
		}
	}
}

func NewClient(cfg Config, log *logger.Logger, opts ...Option) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	cfg.MediaURL = strings.TrimRight(cfg.MediaURL, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: retry.Exponential(5, time.Second),
		log:    log.Component("telephony"),
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      string       `json:"id"`
	Method  string       `json:"method"`
	Params  reportParams `json:"params"`
}

type reportParams struct {
	AccessToken string   `json:"access_token"`
	DateFrom    string   `json:"date_from"`
	DateTo      string   `json:"date_to"`
	Fields      []string `json:"fields"`
	Limit       int      `json:"limit"`
	Offset      int      `json:"offset"`
}

type rpcResponse struct {
	Result *struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireCall struct {
	ID                 int64    `json:"id"`
	CommunicationID    int64    `json:"communication_id"`
	ContactPhoneNumber string   `json:"contact_phone_number"`
	Direction          string   `json:"direction"`
	StartTime          string   `json:"start_time"`
	TotalDuration      int      `json:"total_duration"`
	CallRecords        []string `json:"call_records"`
}

// Fetch returns the calls that started inside the window. When every retry
// is exhausted it logs the failure and returns an empty list: zero calls is a
// legitimate outcome and callers treat it as nothing to process.
func (c *Client) Fetch(ctx context.Context, window types.CallWindow) []types.CallRecord {
	log := c.log.WithField("batch", window.BatchKey)
	if strings.TrimSpace(c.cfg.Token) == "" {
		c.log.WithError(ErrNotConfigured).Error("call report fetch skipped")
		return nil
	}
	var (
		out       []types.CallRecord
		prevFirst int64
	)
	for n := 0; ; n++ {
		if n == maxReportPages {
			log.WithField("pages", n).Warn("call report page limit reached, remaining calls dropped")
			break
		}
		offset := n * c.cfg.PageSize
		var page []types.CallRecord
		err := c.policy.Do(ctx, func() error {
			var err error
			page, err = c.fetchPage(ctx, window, offset)
			return err
		}, func(err error, attempt int, next time.Duration) {
			log.WithField("attempt", attempt).WithField("retry_in", next.String()).
				WithField("error", err.Error()).Warn("call report request failed, retrying")
		})
		if err != nil {
			log.WithField("error", err.Error()).WithField("offset", offset).
				Error("call report fetch failed after retries")
			return nil
		}
		if len(page) > 0 && n > 0 && page[0].CommunicationID == prevFirst {
			log.WithField("offset", offset).Warn("call report repeated the previous page, paging stopped")
			break
		}
		out = append(out, page...)
		if len(page) < c.cfg.PageSize {
			break
		}
		prevFirst = page[0].CommunicationID
	}
	log.WithField("calls", len(out)).Info("call report fetched")
	return out
}

func (c *Client) fetchPage(ctx context.Context, window types.CallWindow, offset int) ([]types.CallRecord, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.Itoa(offset),
		Method:  reportMethod,
		Params: reportParams{
			AccessToken: c.cfg.Token,
			DateFrom:    window.Start.In(c.loc).Format(reportTimeLayout),
			DateTo:      window.End.In(c.loc).Format(reportTimeLayout),
			Fields:      reportFields,
			Limit:       c.cfg.PageSize,
			Offset:      offset,
		},
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode report request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read report body: %w", err)
	}
	if err := retry.CheckStatus(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return c.parseReport(raw)
}

// parseReport treats anything other than result.data being a JSON array as
// malformed, which is retried like a network error.
func (c *Client) parseReport(raw []byte) ([]types.CallRecord, error) {
	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("telephony rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	if rpc.Result == nil {
		return nil, fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}
	data := bytes.TrimSpace(rpc.Result.Data)
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("%w: data is not a list", ErrMalformedResponse)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := make([]types.CallRecord, 0, len(items))
	for _, item := range items {
		var w wireCall
		if err := json.Unmarshal(item, &w); err != nil {
			c.log.WithError(err).Warn("skipping unreadable call entry")
			continue
		}
		out = append(out, c.toRecord(w, item))
	}
	return out, nil
}

func (c *Client) toRecord(w wireCall, raw json.RawMessage) types.CallRecord {
	id := w.CommunicationID
	if id == 0 {
		id = w.ID
	}
	rec := types.CallRecord{
		CommunicationID: id,
		ContactPhone:    strings.TrimSpace(w.ContactPhoneNumber),
		Direction:       NormalizeDirection(w.Direction),
		DurationSec:     w.TotalDuration,
		RecordIDs:       w.CallRecords,
		Raw:             append(json.RawMessage(nil), raw...),
	}
	if t, err := time.ParseInLocation(reportTimeLayout, strings.TrimSpace(w.StartTime), c.loc); err == nil {
		rec.StartTime = t
	}
	return rec
}

// NormalizeDirection maps provider direction codes to inbound/outbound.
// Unknown values come back empty.
func NormalizeDirection(d string) string {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "in", "inbound", "incoming":
		return types.DirectionInbound
	case "out", "outbound", "outgoing":
		return types.DirectionOutbound
	default:
		return ""
	}
}

// RecordingURL returns the media link of the call's first recording, or ""
// when the call has none.
func (c *Client) RecordingURL(call types.CallRecord) string {
	if len(call.RecordIDs) == 0 || strings.TrimSpace(call.RecordIDs[0]) == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d/%s/", c.cfg.MediaURL, call.CommunicationID, strings.TrimSpace(call.RecordIDs[0]))
}

// FetchRecording downloads a recording blob.
func (c *Client) FetchRecording(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("telephony: call has no recording")
	}
	var data []byte
	err := c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := retry.CheckStatus(resp.StatusCode, body); err != nil {
			return err
		}
		data = body
		return nil
	}, func(err error, attempt int, next time.Duration) {
		c.log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("recording download failed, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("download recording: %w", err)
	}
	return data, nil
}
