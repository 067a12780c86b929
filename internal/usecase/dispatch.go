package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"unicode/utf8"

	"tts-relay/internal/domain"
)

// Ledger is the per-identity consumption counter consumed by the dispatcher.
// Implementations must create records idempotently and apply charges
// atomically with respect to concurrent charges for the same identity.
type Ledger interface {
	GetOrCreate(ctx context.Context, identity string) (domain.User, error)
	Charge(ctx context.Context, identity string, characters int) (domain.User, error)
}

// StateStore owns the per-identity conversation mode.
type StateStore interface {
	State(ctx context.Context, identity string) (domain.ConversationState, error)
	Activate(ctx context.Context, identity string) error
}

// Gateway is the synthesis gateway consumed by the dispatcher.
type Gateway interface {
	Ask(ctx context.Context, text string) Outcome
}

// DispatchService routes one inbound message to an outbound reply. It holds
// no per-request state; concurrent Dispatch calls are safe, including for the
// same identity, as long as the injected stores honor their contracts.
type DispatchService struct {
	ledger  Ledger
	states  StateStore
	gateway Gateway
	policy  domain.QuotaPolicy
	logger  *slog.Logger

	// pickFiller selects the filler reply index; overridable in tests.
	pickFiller func(n int) int
}

func NewDispatchService(ledger Ledger, states StateStore, gateway Gateway, policy domain.QuotaPolicy, logger *slog.Logger) (*DispatchService, error) {
	if ledger == nil {
		return nil, errors.New("usecase: ledger must not be nil")
	}
	if states == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if gateway == nil {
		return nil, errors.New("usecase: gateway must not be nil")
	}
	if policy.CharacterLimitPerUser <= 0 {
		policy.CharacterLimitPerUser = domain.DefaultCharacterLimitPerUser
	}
	if policy.MaxMessageLength <= 0 {
		policy.MaxMessageLength = domain.DefaultMaxMessageLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchService{
		ledger:     ledger,
		states:     states,
		gateway:    gateway,
		policy:     policy,
		logger:     logger,
		pickFiller: rand.Intn,
	}, nil
}

// Dispatch routes msg. Expected rejections (unrecognized input, over-long
// messages, exhausted quota, synthesis failures) come back as replies; an
// error means a backing store failed and the request cannot be served.
func (s *DispatchService) Dispatch(ctx context.Context, msg domain.Message) (domain.Reply, error) {
	identity := strings.TrimSpace(msg.Identity)
	if identity == "" {
		return domain.Reply{}, newError(ErrorInvalidInput, "empty_identity", nil)
	}

	if msg.IsCommand {
		return s.dispatchCommand(ctx, identity, msg.Command)
	}

	state, err := s.states.State(ctx, identity)
	if err != nil {
		return domain.Reply{}, newError(ErrorInternal, "state_load_error", err)
	}
	if state != domain.StateActive {
		return s.fillerReply(), nil
	}
	return s.relay(ctx, identity, msg.Text)
}

func (s *DispatchService) dispatchCommand(ctx context.Context, identity, command string) (domain.Reply, error) {
	switch command {
	case commandHelp, commandStart:
		return s.helpReply(), nil
	case commandStartTTS:
		// Idempotent: re-activating an already active identity is a no-op and
		// produces the same confirmation.
		if err := s.states.Activate(ctx, identity); err != nil {
			return domain.Reply{}, newError(ErrorInternal, "state_activate_error", err)
		}
		return domain.TextReply(replyActivated), nil
	default:
		return s.fillerReply(), nil
	}
}

// relay handles plain text from an active identity: length check, soft-cap
// quota check, a single synthesis attempt, and a charge only after success.
func (s *DispatchService) relay(ctx context.Context, identity, text string) (domain.Reply, error) {
	if text == helpCommandLiteral {
		return s.helpReply(), nil
	}
	if utf8.RuneCountInString(text) > s.policy.MaxMessageLength {
		return domain.TextReply(replyTooLong), nil
	}

	user, err := s.ledger.GetOrCreate(ctx, identity)
	if err != nil {
		return domain.Reply{}, newError(ErrorInternal, "ledger_read_error", err)
	}
	if !s.policy.WithinLimit(user) {
		return domain.TextReply(replyLimitExceeded), nil
	}

	outcome := s.gateway.Ask(ctx, text)
	if !outcome.Success() {
		return domain.TextReply(outcome.UserMessage), nil
	}

	if _, err := s.ledger.Charge(ctx, identity, outcome.CharactersCharged); err != nil {
		s.logger.Error("charge after successful synthesis failed", "identity", identity, "characters", outcome.CharactersCharged, "err", err)
		return domain.Reply{}, newError(ErrorInternal, "ledger_charge_error", err)
	}
	return domain.VoiceReply(outcome.Audio, spentCaption(outcome.CharactersCharged)), nil
}

func (s *DispatchService) helpReply() domain.Reply {
	return domain.KeyboardReply(helpText(s.policy.CharacterLimitPerUser))
}

func (s *DispatchService) fillerReply() domain.Reply {
	filler := fillerReplies[s.pickFiller(len(fillerReplies))]
	return domain.KeyboardReply(filler + fillerHelpPointer)
}
