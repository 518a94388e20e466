package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"cvrag/internal/domain"
)

// DefaultMaxMessageLength bounds chat messages, in characters.
const DefaultMaxMessageLength = 1000

var sessionIDRe = regexp.MustCompile(`^[\x21-\x7E]{1,128}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return sessionIDRe.MatchString(fl.Field().String())
	})
	return v
}

type chatInput struct {
	Message   string `validate:"required"`
	SessionID string `validate:"omitempty,sessionid"`
}

// ValidateRequest trims the message and checks both fields. It returns the
// trimmed message or a *domain.ValidationError.
func ValidateRequest(req domain.ChatRequest, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	in := chatInput{Message: strings.TrimSpace(req.Message), SessionID: req.SessionID}
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "SessionID" {
			return "", &domain.ValidationError{Field: "session_id", Reason: "session_id must be 1-128 printable characters without spaces"}
		}
		return "", &domain.ValidationError{Field: "message", Reason: "Message cannot be empty"}
	}
	if err := validate.Var(in.Message, fmt.Sprintf("max=%d", maxLen)); err != nil {
		return "", &domain.ValidationError{Field: "message", Reason: fmt.Sprintf("Message exceeds maximum length of %d characters", maxLen)}
	}
	return in.Message, nil
}
