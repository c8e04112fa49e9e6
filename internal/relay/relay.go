// Package relay bridges the telephony media stream and the realtime speech
// session for one call: it forwards audio both ways, runs local voice
// activity detection to delimit caller turns, arbitrates speaking turns and
// cancels in-flight speech on barge-in.
package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Newrona-pi/voice-interviewer/internal/vad"
)

// AISession is the slice of the realtime client the bridge drives.
type AISession interface {
	AppendAudio(b64 string) error
	CommitInput() error
	CreateResponse(instructions string) error
	CancelResponse() error
	SendFunctionResult(callID, output string) error
	Close() error
}

// MediaSender is the telephony leg the bridge plays audio into.
type MediaSender interface {
	SendMedia(streamSid, payloadB64 string) error
	SendClear(streamSid string) error
	Close() error
}

// StageMachine consumes finalized caller utterances.
type StageMachine interface {
	Start(ctx context.Context) error
	OnUserTranscript(ctx context.Context, text string) error
	Apologize() error
}

// Config tunes per-call behavior.
type Config struct {
	// VAD configures the local detector.
	VAD vad.Config
	// EndCallGrace is how long the telephony leg stays open after an
	// end-call function or hangup, so a closing remark already in flight
	// can play out.
	EndCallGrace time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{VAD: vad.DefaultConfig(), EndCallGrace: 3 * time.Second}
}

// callState is the turn-taking state shared by the two relay loops.
// Writer discipline, under mu:
//
//	streamSid     - inbound loop only (set once on the start envelope)
//	aiSpeaking    - outbound loop only (audio delta / done events)
//	pendingCommit - set by the inbound loop, cleared by the outbound loop
//	cancelSent    - either loop may set it; outbound loop clears per turn
//	ending        - outbound loop only (end_call function)
type callState struct {
	mu            sync.Mutex
	streamSid     string
	aiSpeaking    bool
	pendingCommit bool
	cancelSent    bool
	ending        bool
}

// Bridge relays one active call. The inbound loop is the telephony
// websocket reader calling HandleStart/HandleMedia/HandleStop; the outbound
// loop is the realtime session's read pump invoking the On* callbacks.
type Bridge struct {
	interviewID int64
	cfg         Config

	ai      AISession
	out     MediaSender
	machine StageMachine
	det     *vad.Detector

	// onStreamStart is invoked once with the provider call id, used to
	// kick off the call recording.
	onStreamStart func(callSid string)

	state callState

	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a bridge. The AI session is bound afterwards via BindAI since
// its event callbacks point back at the bridge.
func New(interviewID int64, cfg Config, out MediaSender, machine StageMachine, onStreamStart func(callSid string)) *Bridge {
	return &Bridge{
		interviewID:   interviewID,
		cfg:           cfg,
		out:           out,
		machine:       machine,
		det:           vad.New(cfg.VAD),
		onStreamStart: onStreamStart,
		closed:        make(chan struct{}),
	}
}

// BindAI attaches the dialed realtime session.
func (b *Bridge) BindAI(ai AISession) { b.ai = ai }

// Done is closed when the bridge has fully shut down.
func (b *Bridge) Done() <-chan struct{} { return b.closed }

// HandleStart processes the media-stream start envelope.
func (b *Bridge) HandleStart(ctx context.Context, streamSid, callSid string) {
	b.state.mu.Lock()
	b.state.streamSid = streamSid
	b.state.mu.Unlock()
	log.Printf("relay %d: stream started: %s (call %s)", b.interviewID, streamSid, callSid)

	if b.onStreamStart != nil && callSid != "" {
		go b.onStreamStart(callSid)
	}
	if err := b.machine.Start(ctx); err != nil {
		log.Printf("relay %d: stage machine start: %v", b.interviewID, err)
	}
}

// HandleMedia processes one inbound telephony frame. The frame is always
// forwarded to the AI input buffer, even while the AI is speaking, so no
// caller speech is lost; the decoded copy feeds the local detector.
func (b *Bridge) HandleMedia(payloadB64 string, frame []byte) {
	if err := b.ai.AppendAudio(payloadB64); err != nil {
		log.Printf("relay %d: append audio: %v", b.interviewID, err)
		b.Shutdown(false)
		return
	}

	switch b.det.FeedMulaw(frame) {
	case vad.SpeechStart:
		b.state.mu.Lock()
		speaking := b.state.aiSpeaking
		b.state.mu.Unlock()
		if speaking {
			b.bargeIn()
		}
	case vad.SpeechEnd:
		b.onSpeechEnd()
	}
}

// HandleStop processes the media-stream stop envelope: the provider hung up,
// so both directions terminate without grace.
func (b *Bridge) HandleStop() {
	log.Printf("relay %d: stream stopped by provider", b.interviewID)
	b.Shutdown(false)
}

// onSpeechEnd implements the half-duplex arbitration rule: commit and
// request a response only while the AI is silent. If the AI is mid-turn the
// commit is queued (exactly one) and executed when that turn completes.
func (b *Bridge) onSpeechEnd() {
	b.state.mu.Lock()
	if b.state.aiSpeaking {
		b.state.pendingCommit = true
		b.state.mu.Unlock()
		log.Printf("relay %d: speech end while AI speaking, commit queued", b.interviewID)
		return
	}
	b.state.mu.Unlock()
	b.commitAndRespond()
}

func (b *Bridge) commitAndRespond() {
	if err := b.ai.CommitInput(); err != nil {
		log.Printf("relay %d: commit input: %v", b.interviewID, err)
		return
	}
	if err := b.ai.CreateResponse(""); err != nil {
		log.Printf("relay %d: request response: %v", b.interviewID, err)
	}
}

// bargeIn cancels the in-flight response and purges unplayed audio at the
// provider. Idempotent within one AI turn.
func (b *Bridge) bargeIn() {
	b.state.mu.Lock()
	if b.state.cancelSent || !b.state.aiSpeaking {
		b.state.mu.Unlock()
		return
	}
	b.state.cancelSent = true
	sid := b.state.streamSid
	b.state.mu.Unlock()

	log.Printf("relay %d: barge-in, canceling response", b.interviewID)
	if err := b.ai.CancelResponse(); err != nil {
		log.Printf("relay %d: cancel response: %v", b.interviewID, err)
	}
	if err := b.out.SendClear(sid); err != nil {
		log.Printf("relay %d: clear playback buffer: %v", b.interviewID, err)
	}
}

// OnAudioDelta forwards one AI audio chunk to the telephony leg.
func (b *Bridge) OnAudioDelta(b64 string) {
	b.state.mu.Lock()
	b.state.aiSpeaking = true
	sid := b.state.streamSid
	b.state.mu.Unlock()
	if sid == "" {
		return
	}
	if err := b.out.SendMedia(sid, b64); err != nil {
		log.Printf("relay %d: send media: %v", b.interviewID, err)
		b.Shutdown(false)
	}
}

// OnAudioDone marks the end of the AI's audio and flushes a queued commit.
func (b *Bridge) OnAudioDone() { b.finishAITurn() }

// OnResponseDone marks the end of the AI's turn. If an end-call was
// requested, the call is now allowed to wind down.
func (b *Bridge) OnResponseDone() {
	b.finishAITurn()
	b.state.mu.Lock()
	ending := b.state.ending
	b.state.mu.Unlock()
	if ending {
		b.Shutdown(true)
	}
}

func (b *Bridge) finishAITurn() {
	b.state.mu.Lock()
	b.state.aiSpeaking = false
	b.state.cancelSent = false
	pending := b.state.pendingCommit
	b.state.pendingCommit = false
	ending := b.state.ending
	b.state.mu.Unlock()

	if pending && !ending {
		log.Printf("relay %d: executing queued commit", b.interviewID)
		b.commitAndRespond()
	}
}

// OnSpeechStarted handles the remote service reporting caller speech. While
// the AI is speaking this is a barge-in signal.
func (b *Bridge) OnSpeechStarted() {
	b.state.mu.Lock()
	speaking := b.state.aiSpeaking
	b.state.mu.Unlock()
	if speaking {
		b.bargeIn()
	}
}

// OnUserTranscript feeds a finalized utterance into the stage machine.
func (b *Bridge) OnUserTranscript(text string) {
	if err := b.machine.OnUserTranscript(context.Background(), text); err != nil {
		log.Printf("relay %d: stage machine: %v", b.interviewID, err)
	}
}

// OnFunctionCall executes a model-requested local function and returns its
// result so generation can resume.
func (b *Bridge) OnFunctionCall(name, callID, _ string) {
	switch name {
	case "get_current_date":
		jst := time.FixedZone("JST", 9*60*60)
		out := time.Now().In(jst).Format("2006年01月02日")
		if err := b.ai.SendFunctionResult(callID, `{"date":"`+out+`"}`); err != nil {
			log.Printf("relay %d: function result: %v", b.interviewID, err)
			return
		}
		if err := b.ai.CreateResponse(""); err != nil {
			log.Printf("relay %d: resume after function: %v", b.interviewID, err)
		}
	case "end_call":
		log.Printf("relay %d: end_call requested", b.interviewID)
		b.state.mu.Lock()
		b.state.ending = true
		alreadySilent := !b.state.aiSpeaking
		b.state.mu.Unlock()
		if err := b.ai.SendFunctionResult(callID, `{"status":"ok"}`); err != nil {
			log.Printf("relay %d: function result: %v", b.interviewID, err)
		}
		if alreadySilent {
			b.Shutdown(true)
		}
	default:
		log.Printf("relay %d: unknown function %q requested", b.interviewID, name)
		if err := b.ai.SendFunctionResult(callID, `{"error":"unknown function"}`); err != nil {
			log.Printf("relay %d: function result: %v", b.interviewID, err)
		}
	}
}

// OnAIError surfaces a service-side error to the caller with an apology
// rather than going silent.
func (b *Bridge) OnAIError(message string) {
	log.Printf("relay %d: speech service error: %s", b.interviewID, message)
	if err := b.machine.Apologize(); err != nil {
		log.Printf("relay %d: apology failed: %v", b.interviewID, err)
	}
}

// OnAIClosed handles the realtime session dropping. No reconnect is
// attempted; the call ends and the status callback reconciles it.
func (b *Bridge) OnAIClosed(err error) {
	if err != nil {
		log.Printf("relay %d: realtime session closed: %v", b.interviewID, err)
	}
	b.Shutdown(false)
}

// Shutdown terminates both directions exactly once. The AI session closes
// first to stop further audio; with graceful set, the telephony leg stays
// open for the grace delay so closing remarks already buffered at the
// provider can finish playing.
func (b *Bridge) Shutdown(graceful bool) {
	b.closeOnce.Do(func() {
		go func() {
			defer close(b.closed)
			if b.ai != nil {
				_ = b.ai.Close()
			}
			if graceful && b.cfg.EndCallGrace > 0 {
				time.Sleep(b.cfg.EndCallGrace)
			}
			_ = b.out.Close()
			log.Printf("relay %d: bridge closed", b.interviewID)
		}()
	})
}
