package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/teslashibe/go-intake/internal/httpc"
	"github.com/teslashibe/go-intake/pkg/capture"
)

// DefaultSubmitURL is the intake backend endpoint.
const DefaultSubmitURL = "http://localhost:8000/api/input"

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Payload is a complete form ready for submission.
type Payload struct {
	Image         capture.File
	Rating        int
	Audio         capture.File
	Questionnaire Questionnaire
}

// Ack is the backend's reply to a successful submission.
type Ack struct {
	Message        string `json:"message"`
	TranslatedText string `json:"translated_text"`
}

// Submitter sends a payload to the backend.
type Submitter interface {
	Submit(ctx context.Context, p *Payload) (*Ack, error)
}

// HTTPSubmitter posts payloads as multipart/form-data.
type HTTPSubmitter struct {
	URL    string
	Client *http.Client
}

// NewHTTPSubmitter creates a submitter using the shared HTTP client.
func NewHTTPSubmitter(url string) *HTTPSubmitter {
	return &HTTPSubmitter{URL: url, Client: httpc.Client}
}

// Submit posts p and decodes the backend reply.
func (s *HTTPSubmitter) Submit(ctx context.Context, p *Payload) (*Ack, error) {
	if s.URL == "" {
		return nil, ErrNoSubmitURL
	}

	body, contentType, err := encodeMultipart(p)
	if err != nil {
		return nil, fmt.Errorf("intake: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, body)
	if err != nil {
		return nil, fmt.Errorf("intake: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	client := s.Client
	if client == nil {
		client = httpc.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("intake: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("intake: read response: %w", err)
	}

	var reply struct {
		Ack
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := reply.Detail
		if detail == "" {
			detail = reply.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrInvalidReply, resp.StatusCode, decodeErr)
	}
	// The backend reports processing failures in a 200 body.
	if reply.Error != "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: reply.Error}
	}

	ack := reply.Ack
	return &ack, nil
}

func encodeMultipart(p *Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := writeFile(w, "image", p.Image); err != nil {
		return nil, "", err
	}
	if err := writeFile(w, "audio", p.Audio); err != nil {
		return nil, "", err
	}

	symptoms, err := json.Marshal(p.Questionnaire.Symptoms)
	if err != nil {
		return nil, "", err
	}
	fields := []struct{ name, value string }{
		{"id", p.Questionnaire.ID},
		{"treatment", string(p.Questionnaire.Treatment)},
		{"symptoms", string(symptoms)},
		{"additionalInfo", p.Questionnaire.AdditionalInfo},
		{"rating", strconv.Itoa(p.Rating)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field string, f capture.File) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
	h.Set("Content-Type", f.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Data)
	return err
}
