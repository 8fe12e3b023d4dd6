package integration

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidArgument is returned before any network call when a notification
// subject or body is not usable text
var ErrInvalidArgument = errors.New("invalid notification argument")

// ValidateMessage checks a notification before it is handed to a transport
func ValidateMessage(subject, body string) error {
	if err := checkText("subject", subject); err != nil {
		return err
	}
	return checkText("body", body)
}

func checkText(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s should be a non-empty string", ErrInvalidArgument, name)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s is not valid UTF-8 text", ErrInvalidArgument, name)
	}
	return nil
}
