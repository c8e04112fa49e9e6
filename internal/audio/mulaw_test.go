package audio

import "testing"

func TestDecodeMulaw_SilenceIsQuiet(t *testing.T) {
	// 0xFF is mu-law digital silence (near-zero linear value).
	frame := make([]byte, 160)
	for i := range frame {
		frame[i] = 0xFF
	}
	if rms := FrameRMS(frame); rms > 10 {
		t.Fatalf("expected near-zero RMS for silence, got %f", rms)
	}
}

func TestDecodeMulaw_LoudIsLoud(t *testing.T) {
	// 0x00 decodes to the largest negative excursion.
	frame := make([]byte, 160)
	if rms := FrameRMS(frame); rms < 8000 {
		t.Fatalf("expected high RMS for full-scale frame, got %f", rms)
	}
}

func TestDecodeMulaw_SignSymmetry(t *testing.T) {
	pos := decodeMulawSample(0x00)
	neg := decodeMulawSample(0x80)
	if pos >= 0 {
		t.Fatalf("0x00 should decode negative, got %d", pos)
	}
	if neg != -pos {
		t.Fatalf("sign symmetry broken: %d vs %d", pos, neg)
	}
}

func TestRMS_Empty(t *testing.T) {
	if RMS(nil) != 0 {
		t.Fatalf("empty frame must have zero RMS")
	}
}
