package usecase

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"
)

// Synthesizer converts text to an audio payload. Concrete implementations
// wrap the external backend's transport.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Outcome is the result of one synthesis attempt. Exactly one of Audio or
// UserMessage is populated.
type Outcome struct {
	Audio             []byte
	CharactersCharged int
	UserMessage       string
}

// Success reports whether the attempt produced audio.
func (o Outcome) Success() bool {
	return o.UserMessage == ""
}

// SynthesisGateway makes exactly one backend attempt per call and folds every
// failure mode into a single degraded outcome. Callers never see an error
// from Ask; retry policy, if any, belongs above this layer.
type SynthesisGateway struct {
	synth  Synthesizer
	logger *slog.Logger
}

func NewSynthesisGateway(synth Synthesizer, logger *slog.Logger) (*SynthesisGateway, error) {
	if synth == nil {
		return nil, errors.New("usecase: synthesizer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SynthesisGateway{synth: synth, logger: logger}, nil
}

// Ask sends text to the backend. No retries and no gateway-imposed deadline;
// cancellation arrives via ctx. The underlying cause of a failure is logged
// here together with the offending text, the caller only sees the generic
// user-facing message.
func (g *SynthesisGateway) Ask(ctx context.Context, text string) Outcome {
	audio, err := g.synth.Synthesize(ctx, text)
	if err != nil {
		g.logger.Error("synthesis request failed", "text", text, "err", err)
		return Outcome{UserMessage: replySynthesisDown}
	}
	if len(audio) == 0 {
		g.logger.Error("synthesis returned an empty payload", "text", text)
		return Outcome{UserMessage: replySynthesisDown}
	}
	return Outcome{Audio: audio, CharactersCharged: utf8.RuneCountInString(text)}
}
