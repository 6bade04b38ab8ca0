// Package crm resolves orders, managers and customer cards in RetailCRM.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/types"
)

const crmTimeLayout = "2006-01-02 15:04:05"

// ErrNotConfigured is returned by every lookup when no API key is set.
var ErrNotConfigured = errors.New("crm: api key not configured")

type Config struct {
	URL    string
	APIKey string
}

// Client talks to the RetailCRM v5 API. It is not safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	policy retry.Policy
	log    *logger.Logger
	loc    *time.Location

	users map[int64]string
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

// WithLocation sets the timezone CRM timestamps are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(cl *Client) {
		if loc != nil {
			cl.loc = loc
		}
	}
}

func NewClient(cfg Config, log *logger.Logger, opts ...Option) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		policy: retry.Exponential(3, time.Second),
		log:    log.Component("crm"),
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
}

type wireOrder struct {
	ID        int64  `json:"id"`
	Number    string `json:"number"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	ManagerID int64  `json:"managerId"`
	Customer  struct {
		ID int64 `json:"id"`
	} `json:"customer"`
}

// OrderLink is the edit page of an order.
func (c *Client) OrderLink(id int64) string {
	return fmt.Sprintf("%s/orders/%d/edit", c.cfg.URL, id)
}

// LatestOrder returns the most recently created order of the contact, or
// nil when the contact has none.
func (c *Client) LatestOrder(ctx context.Context, phone string) (*types.Order, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, nil
	}
	var resp struct {
		envelope
		Orders []wireOrder `json:"orders"`
	}
	if err := c.get(ctx, "/api/v5/orders", url.Values{"filter[customer]": {normalized}}, &resp); err != nil {
		return nil, fmt.Errorf("lookup orders: %w", err)
	}
	if len(resp.Orders) == 0 {
		return nil, nil
	}
	// createdAt is a fixed-width timestamp, so string order is time order.
	sort.SliceStable(resp.Orders, func(i, j int) bool {
		return resp.Orders[i].CreatedAt > resp.Orders[j].CreatedAt
	})
	w := resp.Orders[0]
	order := &types.Order{
		ID:         w.ID,
		Number:     w.Number,
		Status:     w.Status,
		ManagerID:  w.ManagerID,
		CustomerID: w.Customer.ID,
	}
	if w.ID != 0 {
		order.Link = c.OrderLink(w.ID)
	}
	if t, err := time.ParseInLocation(crmTimeLayout, w.CreatedAt, c.loc); err == nil {
		order.CreatedAt = t
	}
	return order, nil
}

// ManagerName returns the first name of the CRM user. The user list is
// fetched once per client.
func (c *Client) ManagerName(ctx context.Context, managerID int64) (string, error) {
	if managerID == 0 {
		return "", nil
	}
	if c.users == nil {
		var resp struct {
			envelope
			Users []struct {
				ID        int64  `json:"id"`
				FirstName string `json:"firstName"`
			} `json:"users"`
		}
		if err := c.get(ctx, "/api/v5/users", nil, &resp); err != nil {
			return "", fmt.Errorf("list users: %w", err)
		}
		c.users = make(map[int64]string, len(resp.Users))
		for _, u := range resp.Users {
			c.users[u.ID] = strings.TrimSpace(u.FirstName)
		}
	}
	return c.users[managerID], nil
}

// CustomerLink returns the order tab of the contact's customer card, or ""
// when no customer matches.
func (c *Client) CustomerLink(ctx context.Context, phone string) (string, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return "", nil
	}
	var resp struct {
		envelope
		Customers []struct {
			ID int64 `json:"id"`
		} `json:"customers"`
	}
	if err := c.get(ctx, "/api/v5/customers", url.Values{"filter[name]": {normalized}}, &resp); err != nil {
		return "", fmt.Errorf("lookup customer: %w", err)
	}
	if len(resp.Customers) == 0 || resp.Customers[0].ID == 0 {
		return "", nil
	}
	return fmt.Sprintf("%s/customers/%d#t-log-orders", c.cfg.URL, resp.Customers[0].ID), nil
}

// ResolveLink prefers the order edit page and falls back to the customer
// card.
func (c *Client) ResolveLink(ctx context.Context, phone string, order *types.Order) string {
	if order != nil && order.Link != "" {
		return order.Link
	}
	link, err := c.CustomerLink(ctx, phone)
	if err != nil {
		c.log.WithError(err).Warn("customer card lookup failed")
		return ""
	}
	return link
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return ErrNotConfigured
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.cfg.APIKey)
	endpoint := c.cfg.URL + path + "?" + query.Encode()

	return c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		if !env.Success {
			msg := env.ErrorMsg
			if msg == "" {
				msg = "success=false"
			}
			return retry.Permanent(fmt.Errorf("crm %s: %s", path, msg))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}, func(err error, attempt int, next time.Duration) {
		c.log.WithField("path", path).WithField("attempt", attempt).
			WithField("error", err.Error()).Warn("crm request failed, retrying")
	})
}
