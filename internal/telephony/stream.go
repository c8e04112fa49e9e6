package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Newrona-pi/voice-interviewer/internal/interview"
	"github.com/Newrona-pi/voice-interviewer/internal/realtime"
	"github.com/Newrona-pi/voice-interviewer/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Media-stream envelopes. Twilio sends connected/start/media/stop and we
// emit media and clear back with the same shape.
type streamEnvelope struct {
	Event string      `json:"event"`
	Start *startFrame `json:"start"`
	Media *mediaFrame `json:"media"`
}

type startFrame struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type mediaFrame struct {
	Payload string `json:"payload"`
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// wsMediaSender serializes writes to the Twilio websocket.
type wsMediaSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsMediaSender) SendMedia(streamSid, payloadB64 string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(outboundMedia{
		Event:     "media",
		StreamSid: streamSid,
		Media:     mediaPayload{Payload: payloadB64},
	})
}

func (w *wsMediaSender) SendClear(streamSid string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(outboundClear{Event: "clear", StreamSid: streamSid})
}

func (w *wsMediaSender) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

// sessionHandle late-binds the realtime client so the stage machine can be
// constructed before the session is dialed.
type sessionHandle struct {
	mu sync.Mutex
	c  *realtime.Client
}

func (h *sessionHandle) bind(c *realtime.Client) {
	h.mu.Lock()
	h.c = c
	h.mu.Unlock()
}

func (h *sessionHandle) client() (*realtime.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.c == nil {
		return nil, fmt.Errorf("realtime session not ready")
	}
	return h.c, nil
}

func (h *sessionHandle) AppendAudio(b64 string) error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return c.AppendAudio(b64)
}

func (h *sessionHandle) CommitInput() error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return c.CommitInput()
}

func (h *sessionHandle) CreateResponse(instructions string) error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return c.CreateResponse(instructions)
}

func (h *sessionHandle) CancelResponse() error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return c.CancelResponse()
}

func (h *sessionHandle) SendFunctionResult(callID, output string) error {
	c, err := h.client()
	if err != nil {
		return err
	}
	return c.SendFunctionResult(callID, output)
}

func (h *sessionHandle) Close() error {
	c, err := h.client()
	if err != nil {
		return nil
	}
	return c.Close()
}

// handleStream is the bidirectional media-stream endpoint. It assembles the
// per-call bridge, dials the realtime session and then pumps Twilio
// envelopes until either side closes.
func (s *Service) handleStream(c echo.Context) error {
	id, err := interviewID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "missing interview_id")
	}
	ctx := context.Background()

	iv, err := s.store.GetInterview(ctx, id)
	if err != nil {
		log.Printf("telephony: stream for unknown interview %d: %v", id, err)
		return c.String(http.StatusNotFound, "interview not found")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("upgrade media stream: %w", err)
	}
	sender := &wsMediaSender{conn: conn}

	handle := &sessionHandle{}
	machine, err := interview.New(iv, handle, s.store, nil, s.policy)
	if err != nil {
		log.Printf("telephony: interview %d: %v", id, err)
		return sender.Close()
	}
	bridge := relay.New(id, s.relayCfg, sender, machine, func(callSID string) {
		s.StartRecording(id, callSID)
	})
	bridge.BindAI(handle)

	client, err := realtime.Dial(s.realtime, realtime.Events{
		OnAudioDelta:     bridge.OnAudioDelta,
		OnAudioDone:      bridge.OnAudioDone,
		OnResponseDone:   bridge.OnResponseDone,
		OnUserTranscript: bridge.OnUserTranscript,
		OnFunctionCall:   bridge.OnFunctionCall,
		OnSpeechStarted:  bridge.OnSpeechStarted,
		OnError:          bridge.OnAIError,
		OnClosed:         bridge.OnAIClosed,
	})
	if err != nil {
		log.Printf("telephony: interview %d: dial realtime: %v", id, err)
		return sender.Close()
	}
	handle.bind(client)

	if err := client.ConfigureSession(s.realtime.Voice, interview.SystemInstructions); err != nil {
		log.Printf("telephony: interview %d: configure session: %v", id, err)
		bridge.Shutdown(false)
		<-bridge.Done()
		return nil
	}

	s.pumpEnvelopes(ctx, conn, bridge, id)
	<-bridge.Done()
	return nil
}

func (s *Service) pumpEnvelopes(ctx context.Context, conn *websocket.Conn, bridge *relay.Bridge, id int64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("telephony: interview %d: media stream read: %v", id, err)
			bridge.Shutdown(false)
			return
		}
		var env streamEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("telephony: interview %d: bad envelope: %v", id, err)
			continue
		}
		switch env.Event {
		case "connected":
		case "start":
			if env.Start != nil {
				bridge.HandleStart(ctx, env.Start.StreamSid, env.Start.CallSid)
			}
		case "media":
			if env.Media == nil {
				continue
			}
			frame, err := base64.StdEncoding.DecodeString(env.Media.Payload)
			if err != nil {
				log.Printf("telephony: interview %d: bad media payload: %v", id, err)
				continue
			}
			bridge.HandleMedia(env.Media.Payload, frame)
		case "stop":
			bridge.HandleStop()
			return
		case "mark":
		default:
			log.Printf("telephony: interview %d: unknown envelope event %q", id, env.Event)
		}
	}
}
