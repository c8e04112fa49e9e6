// Package vad implements frame-energy voice activity detection over the
// 20ms mu-law frames of a telephony media stream. Utterance boundaries are
// decided locally so that barge-in and mute timing do not depend on the
// remote speech service's own turn detector.
package vad

import "github.com/Newrona-pi/voice-interviewer/internal/audio"

// Event is the outcome of feeding one frame to the detector.
type Event int

const (
	// None means no boundary was crossed by this frame.
	None Event = iota
	// SpeechStart fires once when enough consecutive frames exceed the
	// energy threshold.
	SpeechStart
	// SpeechEnd fires once per speech segment after the configured silence
	// duration elapses with no frame above threshold.
	SpeechEnd
)

// Config holds detector thresholds.
type Config struct {
	// Threshold is the RMS level (PCM16 scale) above which a frame counts
	// as speech.
	Threshold float64
	// StartFrames is the number of consecutive speech frames required to
	// declare speech-start. Debounces clicks and line noise.
	StartFrames int
	// EndSilenceMs is the silence duration after which speech-end is
	// declared.
	EndSilenceMs int
	// FrameMs is the duration of one frame.
	FrameMs int
}

// DefaultConfig matches 8kHz telephony audio in 20ms frames.
func DefaultConfig() Config {
	return Config{
		Threshold:    300.0,
		StartFrames:  2,
		EndSilenceMs: 700,
		FrameMs:      20,
	}
}

// Detector tracks speech/silence state across frames. Not safe for
// concurrent use; each call session owns one detector fed from its inbound
// relay loop only.
type Detector struct {
	cfg           Config
	inSpeech      bool
	speechCount   int
	silenceFrames int
	endFrames     int
}

// New returns a Detector for the given config, filling zero fields from
// DefaultConfig.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.StartFrames == 0 {
		cfg.StartFrames = def.StartFrames
	}
	if cfg.EndSilenceMs == 0 {
		cfg.EndSilenceMs = def.EndSilenceMs
	}
	if cfg.FrameMs == 0 {
		cfg.FrameMs = def.FrameMs
	}
	d := &Detector{cfg: cfg}
	d.endFrames = cfg.EndSilenceMs / cfg.FrameMs
	if d.endFrames < 1 {
		d.endFrames = 1
	}
	return d
}

// FeedMulaw decodes one mu-law frame and advances the detector.
func (d *Detector) FeedMulaw(frame []byte) Event {
	return d.feed(audio.FrameRMS(frame))
}

func (d *Detector) feed(rms float64) Event {
	loud := rms >= d.cfg.Threshold

	if !d.inSpeech {
		if loud {
			d.speechCount++
			if d.speechCount >= d.cfg.StartFrames {
				d.inSpeech = true
				d.speechCount = 0
				d.silenceFrames = 0
				return SpeechStart
			}
		} else {
			d.speechCount = 0
		}
		return None
	}

	if loud {
		d.silenceFrames = 0
		return None
	}
	d.silenceFrames++
	if d.silenceFrames >= d.endFrames {
		d.inSpeech = false
		d.silenceFrames = 0
		return SpeechEnd
	}
	return None
}

// Active reports whether the detector currently considers the caller to be
// speaking.
func (d *Detector) Active() bool { return d.inSpeech }

// Reset clears all state, re-arming the detector for a new segment.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceFrames = 0
}
