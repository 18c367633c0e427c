package usecase

import (
	"errors"
	"strings"

	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/imaging"
	"github.com/StudioSemeranoDeployer/GREGTHEBARBERAI/internal/session"
)

// Kind is the classification of a failed operation.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindDeviceUnavailable Kind = "device_unavailable"
	KindCredential        Kind = "credential_error"
	KindProvider          Kind = "provider_error"
)

// credentialMarkers are the message fragments that mark a remote failure
// as attributable to a missing or invalid credential.
var credentialMarkers = []string{
	"401",
	"403",
	"404",
	"api key",
	"api_key_invalid",
	"permission_denied",
	"permission denied",
	"unauthenticated",
	"unauthorized",
	"not_found",
	"not found",
}

// Classify maps an error to its kind. Remote-call errors are inspected by
// message content; everything not recognizably credential-related is a
// provider error.
func Classify(err error) Kind {
	if errors.Is(err, imaging.ErrNotAnImage) {
		return KindInvalidInput
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range credentialMarkers {
		if strings.Contains(msg, marker) {
			return KindCredential
		}
	}
	return KindProvider
}

// FailureFor builds the user-facing failure record for a classified error.
func FailureFor(err error) session.Failure {
	kind := Classify(err)
	switch kind {
	case KindInvalidInput:
		return session.Failure{
			Kind:    string(kind),
			Message: "That file doesn't look like a photo. Please choose an image file.",
		}
	case KindCredential:
		return session.Failure{
			Kind:             string(kind),
			Message:          "The styling service rejected our credentials. Update the API key and try again.",
			CredentialAction: true,
		}
	default:
		return session.Failure{
			Kind:    string(KindProvider),
			Message: "The styling service had a problem. Please try again in a moment.",
		}
	}
}
