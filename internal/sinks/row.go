// Package sinks delivers scored calls to the scoring sheet and summaries to
// chat.
package sinks

import (
	"context"
	"errors"

	"callscore-go/internal/types"
)

// Row is one scored call as the scoring sheet stores it.
type Row struct {
	Number       int
	Manager      string
	Phone        string
	Date         string
	CallType     string
	OrderLink    string
	Scores       types.Scorecard
	Transcript   string
	RecordingURL string
}

// ScoreSink accepts one row per scored order call.
type ScoreSink interface {
	Submit(ctx context.Context, row Row) error
}

// Messenger delivers an HTML-formatted text message.
type Messenger interface {
	Send(ctx context.Context, text string) error
}

// MultiSink submits every row to all sinks and joins their errors.
type MultiSink []ScoreSink

func (m MultiSink) Submit(ctx context.Context, row Row) error {
	var errs []error
	for _, s := range m {
		if err := s.Submit(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
