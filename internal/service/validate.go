package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/capitalize-ai/healthassist/internal/model"
)

const (
	// MaxContentBytes caps a single message (~100KB).
	MaxContentBytes = 100000
	// MaxTitleBytes caps a conversation title.
	MaxTitleBytes = 256
	// TitleRunes is how much of the first message becomes the title.
	TitleRunes = 30
	// DefaultTitle names conversations created without a title.
	DefaultTitle = "New Chat"
)

// ValidateContent validates message content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Reason: "cannot be empty"}
	}
	if len(content) > MaxContentBytes {
		return &ValidationError{Field: "content", Reason: "exceeds maximum length"}
	}
	if !utf8.ValidString(content) {
		return &ValidationError{Field: "content", Reason: "must be valid UTF-8"}
	}
	return nil
}

// ValidateTitle validates a conversation title. Empty titles are allowed.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleBytes {
		return &ValidationError{Field: "title", Reason: "exceeds maximum length"}
	}
	if !utf8.ValidString(title) {
		return &ValidationError{Field: "title", Reason: "must be valid UTF-8"}
	}
	return nil
}

// ValidateRole validates a message role.
func ValidateRole(role model.Role) error {
	if !role.Valid() {
		return &ValidationError{Field: "role", Reason: "must be user or assistant"}
	}
	return nil
}

// DeriveTitle builds a conversation title from the first user message.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= TitleRunes {
		return text
	}
	prefix := strings.TrimRightFunc(string([]rune(text)[:TitleRunes]), unicode.IsSpace)
	return prefix + "..."
}
