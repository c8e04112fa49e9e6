// Package realtime maintains one websocket session per call to the remote
// speech service and translates session configuration, audio frames and
// function-call events.
package realtime

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Events are the callbacks a session owner wires before dialing. All are
// optional; they are invoked from the client's single read loop.
type Events struct {
	// OnAudioDelta receives a base64 audio chunk of the in-flight response.
	OnAudioDelta func(b64 string)
	// OnAudioDone fires when the audio of the current response finished.
	OnAudioDone func()
	// OnResponseDone fires when the current response turn fully completed.
	OnResponseDone func()
	// OnUserTranscript receives a finalized transcription of committed
	// caller audio.
	OnUserTranscript func(text string)
	// OnFunctionCall fires when the model requests a local function.
	OnFunctionCall func(name, callID, arguments string)
	// OnSpeechStarted fires when the service reports caller speech.
	OnSpeechStarted func()
	// OnError receives protocol-level errors from the service.
	OnError func(message string)
	// OnClosed fires once when the session ends, with the read error if any.
	OnClosed func(err error)
}

// Config holds connection parameters for one realtime session.
type Config struct {
	APIKey string
	Model  string
	Voice  string
	// URL overrides the service endpoint, used by tests.
	URL string
}

const defaultURLFormat = "wss://api.openai.com/v1/realtime?model=%s"

// Client is one realtime session. Writes are serialized by a mutex; reads
// happen on a single pump goroutine. There is no automatic reconnect: a
// failed session ends the call and is reconciled through the telephony
// status callback.
type Client struct {
	conn   *websocket.Conn
	events Events

	writeMu sync.Mutex

	closeOnce sync.Once
	stopCh    chan struct{}
}

// Dial opens the websocket session and starts the read pump.
func Dial(cfg Config, events Events) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("realtime: API key is empty")
	}
	url := cfg.URL
	if url == "" {
		url = fmt.Sprintf(defaultURLFormat, cfg.Model)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(url, headers)
	if err != nil {
		if resp != nil {
			log.Printf("realtime: connect failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: connect: %w", err)
	}

	c := &Client{conn: conn, events: events, stopCh: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

// ConfigureSession sends session.update. Turn detection is always disabled;
// input transcription and the local tool surface are always declared.
func (c *Client) ConfigureSession(voice, instructions string) error {
	return c.send(sessionUpdateMsg{
		Type: "session.update",
		Session: SessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      instructions,
			Voice:             voice,
			InputAudioFormat:  "g711_ulaw",
			OutputAudioFormat: "g711_ulaw",
			TurnDetection:     nil,
			InputAudioTranscription: &TranscriptionCfg{
				Model:    "whisper-1",
				Language: "ja",
			},
			Tools: []Tool{
				{
					Type:        "function",
					Name:        "get_current_date",
					Description: "今日の日付を取得します。",
					Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
				},
				{
					Type:        "function",
					Name:        "end_call",
					Description: "面接を終了し、通話を切断します。締めの挨拶を述べた後に呼び出してください。",
					Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
				},
			},
		},
	})
}

// AppendAudio forwards one base64 telephony frame to the input buffer.
func (c *Client) AppendAudio(b64 string) error {
	return c.send(audioAppendMsg{Type: "input_audio_buffer.append", Audio: b64})
}

// CommitInput commits the input buffer, closing the current utterance.
func (c *Client) CommitInput() error {
	return c.send(simpleMsg{Type: "input_audio_buffer.commit"})
}

// CreateResponse requests a generated reply with per-stage instructions.
func (c *Client) CreateResponse(instructions string) error {
	return c.send(responseCreateMsg{
		Type:     "response.create",
		Response: responseOptions{Instructions: instructions},
	})
}

// CancelResponse cancels the in-flight response (barge-in).
func (c *Client) CancelResponse() error {
	return c.send(simpleMsg{Type: "response.cancel"})
}

// SendFunctionResult returns a function-call result to the conversation so
// generation can resume.
func (c *Client) SendFunctionResult(callID, output string) error {
	return c.send(itemCreateMsg{
		Type: "conversation.item.create",
		Item: conversationItem{Type: "function_call_output", CallID: callID, Output: output},
	})
}

func (c *Client) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("realtime: send: %w", err)
	}
	return nil
}

// Close tears down the session. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stopCh)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("realtime: recovered in read loop: %v", r)
		}
	}()
	for {
		var ev serverEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			select {
			case <-c.stopCh:
				err = nil
			default:
			}
			if c.events.OnClosed != nil {
				c.events.OnClosed(err)
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev serverEvent) {
	switch ev.Type {
	case "response.audio.delta":
		if c.events.OnAudioDelta != nil {
			c.events.OnAudioDelta(ev.Delta)
		}
	case "response.audio.done":
		if c.events.OnAudioDone != nil {
			c.events.OnAudioDone()
		}
	case "response.done":
		if c.events.OnResponseDone != nil {
			c.events.OnResponseDone()
		}
	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" && c.events.OnUserTranscript != nil {
			c.events.OnUserTranscript(ev.Transcript)
		}
	case "response.function_call_arguments.done":
		if c.events.OnFunctionCall != nil {
			c.events.OnFunctionCall(ev.Name, ev.CallID, ev.Arguments)
		}
	case "input_audio_buffer.speech_started":
		if c.events.OnSpeechStarted != nil {
			c.events.OnSpeechStarted()
		}
	case "error":
		log.Printf("realtime: service error: %s", ev.Error.Message)
		if c.events.OnError != nil {
			c.events.OnError(ev.Error.Message)
		}
	case "session.created", "session.updated":
		log.Printf("realtime: session event: %s", ev.Type)
	}
}
