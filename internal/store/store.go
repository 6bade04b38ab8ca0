// Package store lays out the per-batch artifact directories and allocates
// the sequence numbers calls are filed under.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	audioExt       = ".mp3"
	transcriptExt  = ".txt"
	sidecarSuffix  = "_call_info.json"
	analysisSuffix = "_analysis.json"
	deliverySuffix = "_delivered.json"
	rawSuffix      = "_raw.txt"
)

var (
	audioName   = regexp.MustCompile(`^call(\d+)(?:_(\d+))?\.mp3$`)
	sidecarName = regexp.MustCompile(`^call(\d+)(?:_(\d+))?_call_info\.json$`)
)

// Store is rooted at the data directory.
type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

// Batch holds the three directories of one batch key.
type Batch struct {
	Key           string
	AudioDir      string
	TranscriptDir string
	AnalysisDir   string
}

// Batch returns the directories for key, creating them if needed.
func (s *Store) Batch(key string) (Batch, error) {
	b := Batch{
		Key:           key,
		AudioDir:      filepath.Join(s.Root, "audio", key),
		TranscriptDir: filepath.Join(s.Root, "transcripts", key),
		AnalysisDir:   filepath.Join(s.Root, "analyses", key),
	}
	for _, dir := range []string{b.AudioDir, b.TranscriptDir, b.AnalysisDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Batch{}, fmt.Errorf("create batch dir: %w", err)
		}
	}
	return b, nil
}

func (b Batch) AudioPath(base string) string {
	return filepath.Join(b.AudioDir, base+audioExt)
}

func (b Batch) SidecarPath(base string) string {
	return filepath.Join(b.AudioDir, base+sidecarSuffix)
}

func (b Batch) TranscriptPath(base string) string {
	return filepath.Join(b.TranscriptDir, base+transcriptExt)
}

func (b Batch) AnalysisPath(base string) string {
	return filepath.Join(b.AnalysisDir, base+analysisSuffix)
}

// DeliveryPath is the marker recording which sinks already received the call.
func (b Batch) DeliveryPath(base string) string {
	return filepath.Join(b.AnalysisDir, base+deliverySuffix)
}

func (b Batch) RawPath(base string) string {
	return filepath.Join(b.AnalysisDir, base+rawSuffix)
}

// NextIndex scans dir for call audio and sidecars and returns the highest
// sequence number plus one, or 1 when there is none. A call whose recording
// could not be fetched still owns its number through its sidecar. It reads
// the directory on every call.
func NextIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	max := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := audioName.FindStringSubmatch(e.Name())
		if m == nil {
			m = sidecarName.FindStringSubmatch(e.Name())
		}
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// IndexOf extracts the sequence number from a base name.
func IndexOf(base string) (int, bool) {
	m := audioName.FindStringSubmatch(base + audioExt)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

// BaseName is call{n} or call{n}_{phone}. Non-digits are dropped from the
// phone so the name stays inside the index pattern.
func BaseName(n int, phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return fmt.Sprintf("call%d", n)
	}
	return fmt.Sprintf("call%d_%s", n, digits)
}

// Artifact is a materialized call: the audio file (when the recording could
// be fetched) and its sidecar.
type Artifact struct {
	Base         string
	AudioPath    string
	SidecarPath  string
	RecordingURL string
	HasAudio     bool
}

// Sidecar is the metadata written next to every audio artifact.
type Sidecar struct {
	CommunicationID int64           `json:"communication_id"`
	StartTime       string          `json:"start_time"`
	Call            json.RawMessage `json:"call"`
	OrderLink       string          `json:"order_link"`
	ContactPhone    string          `json:"contact_phone"`
	RecordingURL    string          `json:"recording_url"`
	ManagerName     string          `json:"manager_name,omitempty"`
	OrderStatus     string          `json:"order_status,omitempty"`
}

// WriteJSON writes v indented, without escaping non-ASCII or HTML.
func WriteJSON(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &sc, nil
}

// Delivery records what was sent for a call so later runs do not send it
// again.
type Delivery struct {
	Scored    bool   `json:"scored"`
	RowNumber int    `json:"row_number,omitempty"`
	Messaged  bool   `json:"messaged"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ReadDelivery returns the zero Delivery when no marker exists.
func ReadDelivery(path string) (Delivery, error) {
	var d Delivery
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return d, err
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return Delivery{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return d, nil
}

// FindExisting returns the base name a call was already filed under in
// dir, matched by the communication id recorded in sidecars.
func FindExisting(dir string, communicationID int64) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sidecarSuffix) {
			continue
		}
		sc, err := ReadSidecar(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if sc.CommunicationID == communicationID {
			return strings.TrimSuffix(name, sidecarSuffix), true, nil
		}
	}
	return "", false, nil
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
