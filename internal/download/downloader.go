// Package download materializes call recordings and their sidecars.
package download

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"callscore-go/internal/logger"
	"callscore-go/internal/store"
	"callscore-go/internal/types"
)

const sidecarTimeLayout = "2006-01-02 15:04:05"

// RecordingSource locates and fetches call recordings.
type RecordingSource interface {
	RecordingURL(call types.CallRecord) string
	FetchRecording(ctx context.Context, url string) ([]byte, error)
}

// Resolution is what the eligibility stage learned about the contact.
type Resolution struct {
	OrderLink   string
	ManagerName string
	OrderStatus string
}

type Downloader struct {
	src         RecordingSource
	minDuration int
	log         *logger.Logger
}

func New(src RecordingSource, minDurationSec int, log *logger.Logger) *Downloader {
	return &Downloader{src: src, minDuration: minDurationSec, log: log.Component("download")}
}

// Download writes <base>.mp3 and <base>_call_info.json for the call. Calls
// shorter than the minimum duration return nil without touching disk. A
// recording that cannot be fetched is logged; the sidecar is still written.
func (d *Downloader) Download(ctx context.Context, call types.CallRecord, index int, batch store.Batch, res Resolution) (*store.Artifact, error) {
	log := d.log.WithCall(call)
	if call.DurationSec < d.minDuration {
		log.WithField("min_duration_sec", d.minDuration).Info("call too short, not downloaded")
		return nil, nil
	}

	base := store.BaseName(index, call.ContactPhone)
	art := &store.Artifact{
		Base:         base,
		AudioPath:    batch.AudioPath(base),
		SidecarPath:  batch.SidecarPath(base),
		RecordingURL: d.src.RecordingURL(call),
	}
	log = log.WithField("base", base)

	switch {
	case store.Exists(art.AudioPath):
		art.HasAudio = true
		log.Debug("audio already present, fetch skipped")
	case art.RecordingURL == "":
		log.Warn("call has no recording")
	default:
		data, err := d.src.FetchRecording(ctx, art.RecordingURL)
		if err != nil {
			log.WithField("error", err.Error()).Warn("recording fetch failed")
			break
		}
		if err := os.WriteFile(art.AudioPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("write audio %s: %w", base, err)
		}
		art.HasAudio = true
		log.WithField("size", humanize.Bytes(uint64(len(data)))).Info("recording saved")
	}

	sc := store.Sidecar{
		CommunicationID: call.CommunicationID,
		Call:            call.Raw,
		OrderLink:       res.OrderLink,
		ContactPhone:    call.ContactPhone,
		RecordingURL:    art.RecordingURL,
		ManagerName:     res.ManagerName,
		OrderStatus:     res.OrderStatus,
	}
	if !call.StartTime.IsZero() {
		sc.StartTime = call.StartTime.Format(sidecarTimeLayout)
	}
	if len(sc.Call) == 0 {
		sc.Call = []byte("null")
	}
	if err := store.WriteJSON(art.SidecarPath, sc); err != nil {
		return nil, err
	}
	return art, nil
}
