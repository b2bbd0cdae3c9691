package identity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidStateToken is returned for state tokens that are not base64 JSON
// carrying a user id.
var ErrInvalidStateToken = errors.New("invalid state token")

// StateToken is the payload the checkout flow embeds in the redirect through
// the payment page.
type StateToken struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

var stateEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// DecodeStateToken decodes a base64 (standard or URL alphabet, padded or raw)
// JSON state token.
func DecodeStateToken(raw string) (StateToken, error) {
	// '+' arrives as a space when the token was not query-escaped
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "+")
	if s == "" {
		return StateToken{}, ErrInvalidStateToken
	}
	for _, enc := range stateEncodings {
		decoded, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		var tok StateToken
		if err := json.Unmarshal(decoded, &tok); err != nil {
			return StateToken{}, ErrInvalidStateToken
		}
		if strings.TrimSpace(tok.UserID) == "" {
			return StateToken{}, ErrInvalidStateToken
		}
		tok.UserID = strings.TrimSpace(tok.UserID)
		return tok, nil
	}
	return StateToken{}, ErrInvalidStateToken
}

// EncodeStateToken produces the URL-safe form of a state token.
func EncodeStateToken(tok StateToken) (string, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
