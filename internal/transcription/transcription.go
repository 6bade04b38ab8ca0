// Package transcription turns call audio into a speaker-labelled transcript.
package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"

	"callscore-go/internal/logger"
)

// ErrorMarker opens a transcript file whose transcription failed.
const ErrorMarker = "[TRANSCRIPTION_ERROR]"

const rolePrompt = `Ниже расшифровка телефонного разговора между менеджером магазина и клиентом.
Раздели текст на реплики и пометь каждую строкой, начинающейся с "Менеджер:" или "Клиент:".
Сохрани слова дословно. Не сокращай, не пересказывай, не переводи и не пропускай ничего.
Верни только размеченный текст.

Текст:
"""
%s
"""`

// SpeechToText produces verbatim text from an audio file.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Completer is a zero-temperature language model call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Transcriber struct {
	stt SpeechToText
	llm Completer
	log *logger.Logger
}

func NewTranscriber(stt SpeechToText, llm Completer, log *logger.Logger) *Transcriber {
	return &Transcriber{stt: stt, llm: llm, log: log.Component("transcriber")}
}

// Transcribe writes the transcript of audioPath to transcriptPath and returns
// it. It never fails: on any error the file holds ErrorMarker and the reason,
// and that text is returned. An existing transcript is returned as is unless
// it carries the marker, in which case transcription is attempted again.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, transcriptPath string, assignRoles bool) string {
	log := t.log.WithField("audio", audioPath)

	if existing, err := os.ReadFile(transcriptPath); err == nil {
		if !IsError(string(existing)) {
			log.Debug("transcript already present")
			return string(existing)
		}
		log.Info("previous transcription failed, retrying")
	}

	text, err := t.run(ctx, audioPath, assignRoles)
	if err != nil {
		text = fmt.Sprintf("%s %v", ErrorMarker, err)
		log.WithField("error", err.Error()).Warn("transcription failed")
	} else {
		log.WithField("chars", len(text)).WithField("roles", assignRoles).Info("transcript saved")
	}
	if werr := os.WriteFile(transcriptPath, []byte(text), 0o644); werr != nil {
		log.WithField("error", werr.Error()).Error("write transcript")
	}
	return text
}

func (t *Transcriber) run(ctx context.Context, audioPath string, assignRoles bool) (string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio unavailable: %w", err)
	}
	text, err := t.stt.Transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("speech to text returned no text")
	}
	if !assignRoles {
		return text, nil
	}
	labelled, err := t.llm.Complete(ctx, fmt.Sprintf(rolePrompt, text))
	if err != nil {
		return "", fmt.Errorf("assign roles: %w", err)
	}
	labelled = strings.TrimSpace(labelled)
	if labelled == "" {
		return "", fmt.Errorf("assign roles: empty response")
	}
	return labelled, nil
}

// IsError reports whether a transcript carries the failure marker.
func IsError(transcript string) bool {
	return strings.HasPrefix(strings.TrimSpace(transcript), ErrorMarker)
}
