package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
)

var ErrTelegramNotConfigured = errors.New("sinks: telegram bot token or chat ids not configured")

// Telegram sends HTML messages through the Bot API to every chat id.
type Telegram struct {
	apiURL  string
	token   string
	chatIDs []string
	http    *http.Client
	policy  retry.Policy
	log     *logger.Logger
}

func NewTelegram(apiURL, token string, chatIDs []string, log *logger.Logger, policy retry.Policy) *Telegram {
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Telegram{
		apiURL:  strings.TrimRight(apiURL, "/"),
		token:   strings.TrimSpace(token),
		chatIDs: chatIDs,
		http:    &http.Client{Timeout: 15 * time.Second},
		policy:  policy,
		log:     log.Component("telegram"),
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to each chat. A failure for one chat does not stop the
// others; all failures are returned joined.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t.token == "" || len(t.chatIDs) == 0 {
		return ErrTelegramNotConfigured
	}
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := t.sendTo(ctx, chatID, text); err != nil {
			t.log.WithField("chat_id", chatID).WithField("error", err.Error()).Warn("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, err))
			continue
		}
		t.log.WithField("chat_id", chatID).Debug("telegram message sent")
	}
	return errors.Join(errs...)
}

func (t *Telegram) sendTo(ctx context.Context, chatID, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	form := url.Values{
		"chat_id":                  {chatID},
		"text":                     {text},
		"parse_mode":               {"HTML"},
		"disable_web_page_preview": {"true"},
	}.Encode()

	return t.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := t.http.Do(req)
		if err != nil {
			// The request URL carries the token.
			var uerr *url.Error
			if errors.As(err, &uerr) {
				return uerr.Err
			}
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
		var parsed telegramResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return retry.Permanent(fmt.Errorf("decode telegram response: %w", err))
		}
		if !parsed.OK {
			return retry.Permanent(fmt.Errorf("telegram: %s", parsed.Description))
		}
		return nil
	}, nil)
}
