package intake

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrMissingID is returned for a questionnaire without a patient id.
	ErrMissingID = errors.New("intake: id is required")

	// ErrUnknownTreatment is returned for a treatment outside Treatments.
	ErrUnknownTreatment = errors.New("intake: unknown treatment")

	// ErrUnknownSymptom is returned for a symptom outside Symptoms.
	ErrUnknownSymptom = errors.New("intake: unknown symptom")

	// ErrInvalidAudio is returned when an audio clip is not a usable WAV file.
	ErrInvalidAudio = errors.New("intake: invalid audio")

	// ErrNoSubmitURL is returned when no backend is configured.
	ErrNoSubmitURL = errors.New("intake: submit url not configured")

	// ErrInvalidReply is returned when a successful response cannot be decoded.
	ErrInvalidReply = errors.New("intake: invalid backend reply")
)

// IncompleteError lists the parts of the form that still need input.
type IncompleteError struct {
	Missing []string
}

// Error implements the error interface.
func (e *IncompleteError) Error() string {
	return fmt.Sprintf("intake: please complete all fields, missing %s", strings.Join(e.Missing, ", "))
}

// APIError is a failed submission reported by the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("intake: backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("intake: backend returned status %d: %s", e.StatusCode, e.Detail)
}
