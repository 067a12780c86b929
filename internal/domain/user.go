package domain

// User is the persisted quota record for a single sender identity. The
// counter only ever grows, and only by the length of text that was
// successfully synthesized.
type User struct {
	Identity        string
	CharactersSpent int
}

// ConversationState gates how incoming text is interpreted for an identity.
// An identity with no stored state is Inactive.
type ConversationState string

const (
	StateInactive ConversationState = "inactive"
	StateActive   ConversationState = "active"
)

// QuotaPolicy is the immutable consumption policy applied to every identity.
type QuotaPolicy struct {
	// CharacterLimitPerUser is the soft cap on lifetime characters synthesized
	// for one identity.
	CharacterLimitPerUser int
	// MaxMessageLength is the longest single message accepted for synthesis,
	// in runes.
	MaxMessageLength int
}

const (
	DefaultCharacterLimitPerUser = 2500
	DefaultMaxMessageLength      = 500
)

// DefaultQuotaPolicy returns the stock policy.
func DefaultQuotaPolicy() QuotaPolicy {
	return QuotaPolicy{
		CharacterLimitPerUser: DefaultCharacterLimitPerUser,
		MaxMessageLength:      DefaultMaxMessageLength,
	}
}

// WithinLimit reports whether u may start another synthesis request. A user
// exactly at the limit is already out of quota. The cap is soft: a request
// admitted just under the limit is charged after completion and may push the
// counter past the limit once.
func (p QuotaPolicy) WithinLimit(u User) bool {
	return u.CharactersSpent < p.CharacterLimitPerUser
}
