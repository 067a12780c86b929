package usecase

import "fmt"

// Command names as delivered by the transport, without the leading slash.
const (
	commandHelp     = "help"
	commandStart    = "start"
	commandStartTTS = "start_tts"
)

// helpCommandLiteral is the raw text an active user can type to escape back
// to the command list even when every message is being synthesized.
const helpCommandLiteral = "/help"

const (
	replyActivated     = "From now on every message you send (except commands) will be converted to voice!"
	replyTooLong       = "Your message is too long, please shorten it"
	replyLimitExceeded = "Could not get an answer from the TTS service: unfortunately you have exceeded the per-user character limit"
	replySynthesisDown = "Something went wrong, please try again or contact support"
)

// InternalErrorReply is what the transport sends when dispatch itself fails,
// e.g. the backing store is unavailable.
const InternalErrorReply = "Something went wrong on our side, please try again later"

// helpText lists the commands and the per-user character limit.
func helpText(characterLimit int) string {
	return fmt.Sprintf(
		"Hi, I am a text-to-speech bot, here is what I understand:\n"+
			"/help or /start - list all commands (you are here)\n"+
			"/start_tts - start converting your messages to voice\n"+
			"P.S. Every user has a character limit: %d, no way around it",
		characterLimit)
}

// spentCaption reports the characters charged for one synthesized message.
func spentCaption(characters int) string {
	return fmt.Sprintf("Characters spent: %d", characters)
}

// fillerReplies rotate on unrecognized input from inactive users.
var fillerReplies = [...]string{
	"Oh, nice!",
	"Well said!",
	"Took the words right out of my mouth",
	"You really are smart",
	"Must be something clever",
	"So concise!",
}

const fillerHelpPointer = "\n\nIf you wanted me to do something, I did not recognize the command, please check /help"
