package interview

import (
	"context"
	"strings"
)

// TopicExtractor summarizes a free-form reverse question so the interviewer
// can echo its topic back to the caller. Production deployments may plug in
// an LLM-backed implementation.
type TopicExtractor interface {
	Topic(ctx context.Context, text string) (string, error)
}

// KeywordTopicExtractor is the default extractor: it takes the first clause
// of the question, bounded to a spoken-friendly length.
type KeywordTopicExtractor struct {
	// MaxRunes bounds the echoed topic. Zero means the default of 20.
	MaxRunes int
}

func (e KeywordTopicExtractor) Topic(_ context.Context, text string) (string, error) {
	max := e.MaxRunes
	if max == 0 {
		max = 20
	}
	t := strings.TrimSpace(text)
	if i := strings.IndexAny(t, "。？！?!"); i >= 0 {
		t = t[:i]
	}
	runes := []rune(t)
	if len(runes) > max {
		t = string(runes[:max])
	}
	return t, nil
}
