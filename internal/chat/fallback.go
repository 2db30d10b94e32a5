package chat

import (
	"errors"
	"strings"
)

const (
	networkFallbackText = "I'm having trouble connecting right now. Please check your connection and try again in a moment."
	authFallbackText    = "I'm experiencing an authentication issue and can't answer right now. Please contact support if this keeps happening."
	modelFallbackText   = "I'm experiencing a model configuration issue and can't answer right now. Please contact support if this keeps happening."
	genericFallbackText = "I'm having trouble connecting to my knowledge database right now. Please try again in a moment."
	internalFallbackFmt = "Sorry, I couldn't process your message: "
)

// Classify turns a completion failure into a user-presentable Outcome. It is
// total: every error, including nil, maps to an outcome with non-empty text,
// empty sources and an "error" diagnostic.
func Classify(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		switch upstream.Kind {
		case KindNetwork:
			return fallbackOutcome(networkFallbackText, string(KindNetwork), upstream.Kind)
		case KindAuthentication:
			return fallbackOutcome(authFallbackText, string(KindAuthentication), upstream.Kind)
		case KindModelConfiguration:
			return fallbackOutcome(modelFallbackText, string(KindModelConfiguration), upstream.Kind)
		default:
			return fallbackOutcome(genericFallbackText, upstream.Error(), upstream.Kind)
		}
	}

	reason := strings.TrimSpace(err.Error())
	if reason == "" {
		reason = "unknown failure"
	}
	return fallbackOutcome(internalFallbackFmt+reason, reason, KindInternal)
}

func fallbackOutcome(text, diagnostic string, kind ErrorKind) Outcome {
	return Outcome{
		MessageText: text,
		Sources:     []Source{},
		Diagnostics: map[string]any{
			DiagError:     diagnostic,
			DiagErrorKind: string(kind),
		},
	}
}
