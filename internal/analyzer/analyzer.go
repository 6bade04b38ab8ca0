// Package analyzer scores transcripts against the sales rubric.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"callscore-go/internal/extractor"
	"callscore-go/internal/logger"
	"callscore-go/internal/retry"
	"callscore-go/internal/store"
	"callscore-go/internal/transcription"
	"callscore-go/internal/types"
)

// ErrAnalysisFailed means every attempt failed and the transcript was
// archived as <base>_raw.txt.
var ErrAnalysisFailed = errors.New("analysis failed")

// Completer is a zero-temperature language model call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Analyzer struct {
	llm    Completer
	policy retry.Policy
	log    *logger.Logger
}

// New returns an Analyzer that retries the whole prompt-and-decode attempt
// under policy. The pipeline uses three attempts two seconds apart.
func New(llm Completer, policy retry.Policy, log *logger.Logger) *Analyzer {
	return &Analyzer{llm: llm, policy: policy, log: log.Component("analyzer")}
}

// Analyze scores one transcript.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (types.AnalysisResult, error) {
	prompt := BuildPrompt(transcript)
	var res types.AnalysisResult
	err := a.policy.Do(ctx, func() error {
		content, err := a.llm.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		res, err = extractor.Decode(content)
		return err
	}, func(err error, attempt int, next time.Duration) {
		a.log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("analysis attempt failed")
	})
	if err != nil {
		return types.AnalysisResult{}, err
	}
	return res, nil
}

// AnalyzeToFile analyzes the transcript and writes <base>_analysis.json. An
// existing analysis file is loaded instead. When the transcript carries the
// transcription error marker, or every attempt fails, the transcript goes
// to <base>_raw.txt and ErrAnalysisFailed is returned. managerName, when set,
// overrides whatever the model reported.
func (a *Analyzer) AnalyzeToFile(ctx context.Context, transcript string, batch store.Batch, base, managerName string) (*types.AnalysisResult, error) {
	log := a.log.WithField("base", base)
	analysisPath := batch.AnalysisPath(base)
	rawPath := batch.RawPath(base)

	if existing, err := Load(analysisPath); err == nil {
		log.Debug("analysis already present")
		return existing, nil
	}

	var (
		res types.AnalysisResult
		err error
	)
	if transcription.IsError(transcript) {
		err = errors.New("transcript is marked as failed")
	} else {
		res, err = a.Analyze(ctx, transcript)
	}
	if err != nil {
		if werr := os.WriteFile(rawPath, []byte(transcript), 0o644); werr != nil {
			return nil, fmt.Errorf("archive raw transcript: %w", werr)
		}
		log.WithField("error", err.Error()).WithField("raw", rawPath).Error("analysis failed, transcript archived")
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	if managerName != "" {
		res.ManagerName = managerName
	}
	if err := store.WriteJSON(analysisPath, res); err != nil {
		return nil, err
	}
	_ = os.Remove(rawPath)
	log.WithField("category", res.Category).Info("analysis saved")
	return &res, nil
}

// Load reads a saved analysis.
func Load(path string) (*types.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res types.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if res.Scores == nil {
		res.Scores = types.NewScorecard()
	}
	return &res, nil
}
