package interview

import (
	"context"
	"testing"
)

func TestCorrectTranscript(t *testing.T) {
	cases := []struct{ in, want string }{
		{"私の死亡動機は成長です", "私の志望動機は成長です"},
		{"脂肪動機について", "志望動機について"},
		{"志望動機はそのまま", "志望動機はそのまま"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := CorrectTranscript(tc.in); got != tc.want {
			t.Fatalf("CorrectTranscript(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCheckCompliance(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"上司から暴力を受けました", true},
		{"死ねと言われました", true},
		{"差別的な扱いがありました", true},
		{"特に問題はありませんでした", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := CheckCompliance(tc.in); got != tc.want {
			t.Fatalf("CheckCompliance(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestKeywordTopicExtractor(t *testing.T) {
	e := KeywordTopicExtractor{}
	topic, err := e.Topic(context.Background(), "福利厚生はどうなっていますか。詳しく知りたいです。")
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if topic != "福利厚生はどうなっていますか" {
		t.Fatalf("unexpected topic %q", topic)
	}

	long := "あ"
	for i := 0; i < 40; i++ {
		long += "い"
	}
	topic, _ = e.Topic(context.Background(), long)
	if got := len([]rune(topic)); got != 20 {
		t.Fatalf("topic not bounded: %d runes", got)
	}
}
