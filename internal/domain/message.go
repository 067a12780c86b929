package domain

// Message is one inbound text delivered by the transport. Command detection
// happens upstream: the transport adapter sets IsCommand and Command before
// the dispatcher sees the message.
type Message struct {
	Identity  string
	Text      string
	IsCommand bool
	Command   string
}

// ReplyKind discriminates the two outbound response shapes.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyVoice ReplyKind = "voice"
)

// Reply is the outbound result of dispatching one Message: either plain text
// or an audio payload with a caption.
type Reply struct {
	Kind    ReplyKind
	Text    string
	Audio   []byte
	Caption string
	// Keyboard asks the transport to attach the command reply keyboard.
	Keyboard bool
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// KeyboardReply builds a plain text reply with the command keyboard attached.
func KeyboardReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text, Keyboard: true}
}

// VoiceReply builds an audio reply with a caption.
func VoiceReply(audio []byte, caption string) Reply {
	return Reply{Kind: ReplyVoice, Audio: audio, Caption: caption}
}
