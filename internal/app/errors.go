package app

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrNameEmpty       = errors.New("session name is empty")
	ErrUserNotFound    = errors.New("user not found")
	ErrOAuthExchange   = errors.New("oauth code exchange failed")
	ErrAPIKeyInvalid   = errors.New("gemini api key rejected")
)
