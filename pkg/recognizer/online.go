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

// groqWhisperBackend calls Groq's hosted Whisper-compatible transcription
// endpoint for a single complete utterance.
type groqWhisperBackend struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewGroqBackend builds a Backend backed by Groq's hosted Whisper API.
func NewGroqBackend(apiKey, model string, timeout time.Duration) Backend {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &groqWhisperBackend{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *groqWhisperBackend) Name() string { return "groq" }

func (b *groqWhisperBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	wav := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", b.model); err != nil {
		return Transcript{}, err
	}
	if lang != "" {
		if err := w.WriteField("language", string(lang)); err != nil {
			return Transcript{}, err
		}
	}
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Transcript{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wav)); err != nil {
		return Transcript{}, err
	}
	if err := w.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return Transcript{}, fmt.Errorf("recognizer: groq error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, err
	}

	return Transcript{Text: result.Text, Language: lang, Confidence: 1}, nil
}

// openAIWhisperBackend calls OpenAI's /v1/audio/transcriptions endpoint,
// the same wire shape as Groq's Whisper-compatible API.
type openAIWhisperBackend struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewOpenAIBackend builds a Backend backed by OpenAI's hosted Whisper API.
func NewOpenAIBackend(apiKey, model string, timeout time.Duration) Backend {
	if model == "" {
		model = "whisper-1"
	}
	return &openAIWhisperBackend{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (b *openAIWhisperBackend) Name() string { return "openai" }

func (b *openAIWhisperBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	wav := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", b.model); err != nil {
		return Transcript{}, err
	}
	if lang != "" {
		if err := w.WriteField("language", string(lang)); err != nil {
			return Transcript{}, err
		}
	}
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Transcript{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wav)); err != nil {
		return Transcript{}, err
	}
	if err := w.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return Transcript{}, fmt.Errorf("recognizer: openai error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, err
	}

	return Transcript{Text: result.Text, Language: lang, Confidence: 1}, nil
}

// deepgramBackend calls Deepgram's prerecorded transcription endpoint with
// raw PCM uploaded directly (Deepgram accepts linear16 without a WAV
// wrapper, given the right query parameters), and surfaces Deepgram's
// per-word confidences through to WeightedConfidence.
type deepgramBackend struct {
	apiKey string
	client *http.Client
}

// NewDeepgramBackend builds a Backend backed by Deepgram's prerecorded API.
func NewDeepgramBackend(apiKey string, timeout time.Duration) Backend {
	return &deepgramBackend{apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (b *deepgramBackend) Name() string { return "deepgram" }

func (b *deepgramBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	url := fmt.Sprintf("https://api.deepgram.com/v1/listen?encoding=linear16&sample_rate=%d&channels=1", sampleRate)
	if lang != "" {
		url += "&language=" + string(lang)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pcm))
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", "audio/raw")
	req.Header.Set("Authorization", "Token "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return Transcript{}, fmt.Errorf("recognizer: deepgram error (status %d): %s", resp.StatusCode, string(data))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
					Confidence float64 `json:"confidence"`
					Words      []struct {
						Word       string  `json:"word"`
						Confidence float64 `json:"confidence"`
						Start      float64 `json:"start"`
						End        float64 `json:"end"`
					} `json:"words"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return Transcript{Language: lang}, nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	words := make([]Word, len(alt.Words))
	for i, w := range alt.Words {
		words[i] = Word{
			Text:       w.Word,
			Confidence: w.Confidence,
			StartMs:    int(w.Start * 1000),
			EndMs:      int(w.End * 1000),
		}
	}
	conf := alt.Confidence
	if len(words) > 0 {
		conf = WeightedConfidence(words)
	}
	return Transcript{Text: alt.Transcript, Language: lang, Confidence: conf, Words: words}, nil
}

// assemblyAIBackend wraps AssemblyAI's two-step upload-then-poll
// transcription API.
type assemblyAIBackend struct {
	apiKey string
	client *http.Client
}

// NewAssemblyAIBackend builds a Backend backed by AssemblyAI.
func NewAssemblyAIBackend(apiKey string, timeout time.Duration) Backend {
	return &assemblyAIBackend{apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

func (b *assemblyAIBackend) Name() string { return "assemblyai" }

func (b *assemblyAIBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	wav := audio.NewWavBuffer(pcm, sampleRate)

	uploadReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/upload", bytes.NewReader(wav))
	if err != nil {
		return Transcript{}, err
	}
	uploadReq.Header.Set("Authorization", b.apiKey)
	uploadResp, err := b.client.Do(uploadReq)
	if err != nil {
		return Transcript{}, err
	}
	defer uploadResp.Body.Close()
	var uploadResult struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(uploadResp.Body).Decode(&uploadResult); err != nil {
		return Transcript{}, err
	}

	reqBody, err := json.Marshal(map[string]string{"audio_url": uploadResult.UploadURL})
	if err != nil {
		return Transcript{}, err
	}
	transcriptReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/transcript", bytes.NewReader(reqBody))
	if err != nil {
		return Transcript{}, err
	}
	transcriptReq.Header.Set("Authorization", b.apiKey)
	transcriptReq.Header.Set("Content-Type", "application/json")
	transcriptResp, err := b.client.Do(transcriptReq)
	if err != nil {
		return Transcript{}, err
	}
	defer transcriptResp.Body.Close()
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Text   string `json:"text"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(transcriptResp.Body).Decode(&created); err != nil {
		return Transcript{}, err
	}
	if created.Error != "" {
		return Transcript{}, fmt.Errorf("recognizer: assemblyai error: %s", created.Error)
	}
	return Transcript{Text: created.Text, Language: lang, Confidence: 1}, nil
}
