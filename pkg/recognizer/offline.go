package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ghanavoice/ledger/pkg/audio"
)

// offlineBackend calls a local on-device whisper.cpp-style inference server
// over HTTP with no internet required: WAV-encode the utterance, POST
// multipart to /inference, parse the plain-text JSON result.
type offlineBackend struct {
	serverURL string
	model     string
	client    *http.Client
}

// NewOfflineBackend builds a Backend that talks to a local whisper.cpp-style
// server at serverURL.
func NewOfflineBackend(serverURL, model string, timeout time.Duration) Backend {
	return &offlineBackend{
		serverURL: serverURL,
		model:     model,
		client:    &http.Client{Timeout: timeout},
	}
}

func (b *offlineBackend) Name() string { return "offline" }

func (b *offlineBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	wav := audio.NewWavBuffer(pcm, sampleRate)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("recognizer: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return Transcript{}, fmt.Errorf("recognizer: write wav data: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", string(lang)); err != nil {
			return Transcript{}, fmt.Errorf("recognizer: write language field: %w", err)
		}
	}
	if b.model != "" {
		if err := mw.WriteField("model", b.model); err != nil {
			return Transcript{}, fmt.Errorf("recognizer: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, fmt.Errorf("recognizer: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/inference", &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognizer: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognizer: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("recognizer: offline server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transcript{}, fmt.Errorf("recognizer: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Transcript{}, fmt.Errorf("recognizer: parse JSON response: %w", err)
	}

	return Transcript{Text: result.Text, Language: lang, Confidence: 1}, nil
}
