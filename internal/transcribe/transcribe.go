// Package transcribe is the asynchronous full-call transcription back-fill:
// it downloads the finished call recording, archives it and writes the
// whisper transcript into review rows that ended the call without one. It
// never runs on a relay or webhook path.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"
)

// Storage archives recordings.
type Storage interface {
	Upload(key, contentType string, data []byte) error
}

// Store is the write-back slice of the session store.
type Store interface {
	BackfillTranscription(ctx context.Context, interviewID int64, recordingRef, fullTranscript string) error
}

// Config holds credentials and retry tuning.
type Config struct {
	TwilioAccountSID string
	TwilioAuthToken  string
	OpenAIKey        string
	// DownloadRetries and DownloadBackoff bound the wait while the provider
	// finishes writing the recording file.
	DownloadRetries int
	DownloadBackoff time.Duration
	// TranscribeURL overrides the transcription endpoint, used by tests.
	TranscribeURL string
}

const defaultTranscribeURL = "https://api.openai.com/v1/audio/transcriptions"

// transcriptionPrompt biases whisper toward interview vocabulary.
const transcriptionPrompt = "面接、志望動機、逆質問、以上です"

// Service runs one back-fill per finished recording.
type Service struct {
	cfg        Config
	store      Store
	storage    Storage
	httpClient *http.Client
}

func New(cfg Config, store Store, storage Storage) *Service {
	if cfg.DownloadRetries == 0 {
		cfg.DownloadRetries = 5
	}
	if cfg.DownloadBackoff == 0 {
		cfg.DownloadBackoff = 3 * time.Second
	}
	if cfg.TranscribeURL == "" {
		cfg.TranscribeURL = defaultTranscribeURL
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		storage:    storage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Process downloads, archives, transcribes and writes back one recording.
// Errors are logged; a failed transcription still records the recording
// reference so the audio is not lost to reviewers.
func (s *Service) Process(ctx context.Context, interviewID int64, recordingURL string) {
	data, err := s.download(ctx, recordingURL)
	if err != nil {
		log.Printf("transcribe: interview %d: download: %v", interviewID, err)
		return
	}
	// The provider URL is the reference of last resort. The archive key
	// replaces it only once the object actually exists.
	ref := recordingURL + ".wav"
	if s.storage != nil {
		key := fmt.Sprintf("interview_%d_%d.wav", interviewID, time.Now().Unix())
		if err := s.storage.Upload(key, "audio/wav", data); err != nil {
			log.Printf("transcribe: interview %d: archive: %v", interviewID, err)
		} else {
			ref = key
		}
	}

	text, err := s.transcribeAudio(ctx, data)
	if err != nil {
		log.Printf("transcribe: interview %d: whisper: %v", interviewID, err)
		text = ""
	}
	if err := s.store.BackfillTranscription(ctx, interviewID, ref, text); err != nil {
		log.Printf("transcribe: interview %d: backfill: %v", interviewID, err)
		return
	}
	log.Printf("transcribe: interview %d backfilled (%d bytes audio, %d chars transcript)",
		interviewID, len(data), len(text))
}

// download fetches the .wav with basic auth, retrying while the provider is
// still writing the file.
func (s *Service) download(ctx context.Context, recordingURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.DownloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.DownloadBackoff):
			}
		}
		data, err := s.downloadOnce(ctx, recordingURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.cfg.DownloadRetries, lastErr)
}

func (s *Service) downloadOnce(ctx context.Context, recordingURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL+".wav", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.TwilioAccountSID, s.cfg.TwilioAuthToken)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download recording: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// transcribeAudio sends the audio to the whisper transcription endpoint.
func (s *Service) transcribeAudio(ctx context.Context, audio []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	_ = w.WriteField("model", "whisper-1")
	_ = w.WriteField("language", "ja")
	_ = w.WriteField("prompt", transcriptionPrompt)
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TranscribeURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return out.Text, nil
}
