package validate

import (
	"errors"
	"regexp"
)

// MaxMessageLength is the longest chat message in runes.
const MaxMessageLength = 2000

// ErrContactInfo is returned for messages that share an email address or a
// phone number.
var ErrContactInfo = errors.New("message contains contact information")

// ProfanityList holds the words rejected in chat messages.
var ProfanityList = []string{"arsch", "fuck", "shit", "idiot", "bitch"}

var (
	emailPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}`)
)

// ContainsContactInfo reports whether s carries an email address or a phone
// number.
func ContainsContactInfo(s string) bool {
	return emailPattern.MatchString(s) || phonePattern.MatchString(s)
}

// MessageContent validates a chat message:
//   - Required after trimming
//   - Max 2000 characters
//   - No word from ProfanityList
//   - No email address or phone number
func MessageContent(text string) (string, error) {
	text, err := String(text, StringConstraints{
		MaxLength:       MaxMessageLength,
		DisallowedWords: ProfanityList,
		TrimSpace:       true,
	})
	if err != nil {
		return "", err
	}
	if ContainsContactInfo(text) {
		return "", ErrContactInfo
	}
	return text, nil
}
