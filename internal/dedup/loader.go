// Package dedup loads the set of order links already delivered to the
// scoring sheet.
package dedup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/types"
)

const exportURL = "https://docs.google.com/spreadsheets/d/%s/export?format=xlsx&gid=%s"

var (
	ErrNotConfigured = errors.New("dedup: sheet id not configured")
	// ErrHTMLResponse means the export returned a web page, usually a
	// sign-in wall, instead of a workbook.
	ErrHTMLResponse = errors.New("dedup: export returned html")
	ErrNoLinkColumn = errors.New("dedup: order link column not found")
)

type Config struct {
	SheetID string
	GID     string
	// Column is the header of the order link column.
	Column string
	// ExportURL overrides the Google export link.
	ExportURL string
}

type Loader struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
	log    *logger.Logger
}

type Option func(*Loader)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.http = c
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Loader) { l.policy = p }
}

func NewLoader(cfg Config, log *logger.Logger, opts ...Option) *Loader {
	if cfg.GID == "" {
		cfg.GID = "0"
	}
	l := &Loader{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		policy: retry.Exponential(3, time.Second),
		log:    log.Component("dedup"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) URL() string {
	if l.cfg.ExportURL != "" {
		return l.cfg.ExportURL
	}
	return fmt.Sprintf(exportURL, url.PathEscape(l.cfg.SheetID), url.QueryEscape(l.cfg.GID))
}

// Load downloads the sheet export and indexes its order links.
func (l *Loader) Load(ctx context.Context) (*types.DedupIndex, error) {
	if l.cfg.SheetID == "" && l.cfg.ExportURL == "" {
		return nil, ErrNotConfigured
	}
	var data []byte
	err := l.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := l.http.Do(req)
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
		if isHTML(resp.Header.Get("Content-Type")) {
			return retry.Permanent(ErrHTMLResponse)
		}
		data = body
		return nil
	}, func(err error, attempt int, next time.Duration) {
		l.log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("sheet export failed, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("download sheet: %w", err)
	}

	idx, err := Parse(bytes.NewReader(data), l.cfg.Column)
	if err != nil {
		return nil, err
	}
	l.log.WithField("links", idx.Len()).WithField("rows", idx.Rows).Info("dedup index loaded")
	return idx, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mt == "text/html"
}

// Parse reads the first sheet of an XLSX workbook. The link column is found
// by header: an exact match on column, or a header naming an order link.
func Parse(r io.Reader, column string) (*types.DedupIndex, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return types.NewDedupIndex(nil, 0), nil
	}

	linkIdx := linkColumn(rows[0], column)
	if linkIdx == -1 {
		return nil, ErrNoLinkColumn
	}

	var links []string
	dataRows := 0
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		dataRows++
		if linkIdx < len(row) {
			if link := strings.TrimSpace(row[linkIdx]); link != "" {
				links = append(links, link)
			}
		}
	}
	return types.NewDedupIndex(links, dataRows), nil
}

func linkColumn(header []string, column string) int {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, h := range header {
		if want != "" && strings.ToLower(strings.TrimSpace(h)) == want {
			return i
		}
	}
	for i, h := range header {
		l := strings.ToLower(h)
		switch {
		case strings.Contains(l, "order") && strings.Contains(l, "link"):
			return i
		case strings.Contains(l, "ссылка") && strings.Contains(l, "заказ"):
			return i
		}
	}
	return -1
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
