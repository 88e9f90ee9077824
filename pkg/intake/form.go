// Package intake collects the patient intake form: questionnaire, audio
// clip and the captured photo with its pain rating.
package intake

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/teslashibe/go-intake/pkg/capture"
)

// Audio clip file attributes.
const (
	AudioFileName    = "audio.wav"
	AudioContentType = "audio/wav"
)

// Questionnaire holds the patient's answers.
type Questionnaire struct {
	ID             string    `json:"id"`
	Treatment      Treatment `json:"treatment"`
	Symptoms       []string  `json:"symptoms"`
	AdditionalInfo string    `json:"additionalInfo"`
}

// Validate rejects unknown options. Empty fields are allowed here and
// reported by Form.Payload instead.
func (q Questionnaire) Validate() error {
	if q.Treatment != "" && !q.Treatment.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTreatment, q.Treatment)
	}
	for _, s := range q.Symptoms {
		if !ValidSymptom(s) {
			return fmt.Errorf("%w: %q", ErrUnknownSymptom, s)
		}
	}
	return nil
}

// AudioInfo describes a validated WAV clip.
type AudioInfo struct {
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Duration   time.Duration `json:"duration"`
}

// ParseWAV validates a WAV clip and reads its format.
func ParseWAV(data []byte) (AudioInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return AudioInfo{}, fmt.Errorf("%w: not a PCM WAV file", ErrInvalidAudio)
	}
	dur, err := dec.Duration()
	if err != nil {
		return AudioInfo{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return AudioInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
	}, nil
}

// Status summarises which parts of the form are filled in.
type Status struct {
	HasImage      bool          `json:"has_image"`
	HasAudio      bool          `json:"has_audio"`
	Rating        int           `json:"rating,omitempty"`
	Audio         *AudioInfo    `json:"audio,omitempty"`
	Questionnaire Questionnaire `json:"questionnaire"`
}

// Form accumulates the intake form. It receives captured images as a
// capture.Publisher and keeps only the latest one.
type Form struct {
	logger *slog.Logger

	mu            sync.RWMutex
	questionnaire Questionnaire
	image         *capture.File
	rating        int
	audio         []byte
	audioInfo     *AudioInfo
}

// NewForm creates an empty form.
func NewForm(logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{logger: logger.With("component", "intake")}
}

// Publish stores a captured image and its rating, replacing any earlier one.
func (f *Form) Publish(image capture.File, rating int) {
	f.mu.Lock()
	f.image = &image
	f.rating = rating
	f.mu.Unlock()
	f.logger.Info("image attached", "bytes", len(image.Data), "rating", rating)
}

// Image returns the latest captured image and its rating.
func (f *Form) Image() (capture.File, int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.image == nil {
		return capture.File{}, 0, false
	}
	return *f.image, f.rating, true
}

// SetQuestionnaire replaces the questionnaire answers.
func (f *Form) SetQuestionnaire(q Questionnaire) error {
	q.ID = strings.TrimSpace(q.ID)
	if err := q.Validate(); err != nil {
		return err
	}
	q.Symptoms = append([]string(nil), q.Symptoms...)

	f.mu.Lock()
	f.questionnaire = q
	f.mu.Unlock()
	return nil
}

// Questionnaire returns the current answers.
func (f *Form) Questionnaire() Questionnaire {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q := f.questionnaire
	q.Symptoms = append([]string(nil), q.Symptoms...)
	return q
}

// SetAudio validates and stores the recorded clip.
func (f *Form) SetAudio(data []byte) (AudioInfo, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return AudioInfo{}, err
	}

	f.mu.Lock()
	f.audio = append([]byte(nil), data...)
	f.audioInfo = &info
	f.mu.Unlock()

	f.logger.Info("audio attached",
		"bytes", len(data),
		"sample_rate", info.SampleRate,
		"duration_ms", info.Duration.Milliseconds(),
	)
	return info, nil
}

// Status reports the form's progress.
func (f *Form) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st := Status{
		HasImage:      f.image != nil,
		HasAudio:      f.audio != nil,
		Audio:         f.audioInfo,
		Questionnaire: f.questionnaire,
	}
	if f.image != nil {
		st.Rating = f.rating
	}
	return st
}

// Reset clears everything.
func (f *Form) Reset() {
	f.mu.Lock()
	f.questionnaire = Questionnaire{}
	f.image = nil
	f.rating = 0
	f.audio = nil
	f.audioInfo = nil
	f.mu.Unlock()
}

// Payload assembles a submission, or returns an *IncompleteError naming
// every missing part.
func (f *Form) Payload() (*Payload, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var missing []string
	if f.image == nil {
		missing = append(missing, "image")
	}
	if f.audio == nil {
		missing = append(missing, "audio")
	}
	if f.questionnaire.ID == "" {
		missing = append(missing, "id")
	}
	if f.questionnaire.Treatment == "" {
		missing = append(missing, "treatment")
	}
	if len(f.questionnaire.Symptoms) == 0 {
		missing = append(missing, "symptoms")
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}

	return &Payload{
		Image:         *f.image,
		Rating:        f.rating,
		Audio:         capture.File{Name: AudioFileName, ContentType: AudioContentType, Data: f.audio},
		Questionnaire: f.questionnaire,
	}, nil
}
