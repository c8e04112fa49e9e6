package vad

import "testing"

func feedN(d *Detector, rms float64, n int) []Event {
	var evs []Event
	for i := 0; i < n; i++ {
		if ev := d.feed(rms); ev != None {
			evs = append(evs, ev)
		}
	}
	return evs
}

func TestDetector_StartDebounce(t *testing.T) {
	d := New(Config{Threshold: 300, StartFrames: 2, EndSilenceMs: 700, FrameMs: 20})

	// A single loud frame surrounded by silence must not start speech.
	if ev := d.feed(500); ev != None {
		t.Fatalf("single loud frame triggered %v", ev)
	}
	if ev := d.feed(50); ev != None {
		t.Fatalf("unexpected event %v", ev)
	}
	if d.Active() {
		t.Fatalf("detector active after isolated click")
	}

	// Two consecutive loud frames start speech exactly once.
	if ev := d.feed(500); ev != None {
		t.Fatalf("unexpected event %v", ev)
	}
	if ev := d.feed(500); ev != SpeechStart {
		t.Fatalf("expected SpeechStart, got %v", ev)
	}
	if !d.Active() {
		t.Fatalf("detector should be active")
	}
}

func TestDetector_SingleEndPerSegment(t *testing.T) {
	d := New(Config{Threshold: 300, StartFrames: 2, EndSilenceMs: 700, FrameMs: 20})

	feedN(d, 500, 5) // speech
	// 700ms at 20ms frames = 35 silence frames to end.
	evs := feedN(d, 10, 35)
	ends := 0
	for _, ev := range evs {
		if ev == SpeechEnd {
			ends++
		}
	}
	if ends != 1 {
		t.Fatalf("expected exactly one SpeechEnd, got %d", ends)
	}

	// Further silence must never re-fire the end event.
	for _, ev := range feedN(d, 10, 100) {
		if ev == SpeechEnd {
			t.Fatalf("SpeechEnd re-fired during continued silence")
		}
	}
}

func TestDetector_RearmsAfterEnd(t *testing.T) {
	d := New(Config{Threshold: 300, StartFrames: 2, EndSilenceMs: 100, FrameMs: 20})

	feedN(d, 500, 3)
	feedN(d, 10, 10) // > 100ms silence, ends segment

	evs := append(feedN(d, 500, 3), feedN(d, 10, 10)...)
	var starts, ends int
	for _, ev := range evs {
		switch ev {
		case SpeechStart:
			starts++
		case SpeechEnd:
			ends++
		}
	}
	if starts != 1 || ends != 1 {
		t.Fatalf("expected one start and one end for second segment, got %d/%d", starts, ends)
	}
}

func TestDetector_BriefDipDoesNotEnd(t *testing.T) {
	d := New(Config{Threshold: 300, StartFrames: 2, EndSilenceMs: 700, FrameMs: 20})

	feedN(d, 500, 3)
	feedN(d, 10, 10) // 200ms pause, below the 700ms threshold
	if evs := feedN(d, 500, 2); len(evs) != 0 {
		t.Fatalf("resumed speech inside pause emitted %v", evs)
	}
	if !d.Active() {
		t.Fatalf("detector should still be in speech after short pause")
	}
}

func TestDetector_DefaultsApplied(t *testing.T) {
	d := New(Config{})
	if d.cfg.Threshold != 300.0 || d.cfg.StartFrames != 2 || d.endFrames != 35 {
		t.Fatalf("defaults not applied: %+v endFrames=%d", d.cfg, d.endFrames)
	}
}
