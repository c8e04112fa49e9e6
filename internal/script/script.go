// Package script loads the interview question script from a YAML seed file.
package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Newrona-pi/voice-interviewer/internal/model"
)

// QuestionSpec is one scripted question.
type QuestionSpec struct {
	Text        string `yaml:"text"`
	MaxDuration int    `yaml:"max_duration"`
}

// Script is the parsed seed file.
type Script struct {
	Name      string         `yaml:"name"`
	Questions []QuestionSpec `yaml:"questions"`
}

// Load reads and validates a script file.
func Load(filename string) (*Script, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read script file %s: %w", filename, err)
	}
	var sc Script
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse script yaml: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("validate script: %w", err)
	}
	return &sc, nil
}

func (sc *Script) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("script name is required")
	}
	if len(sc.Questions) == 0 {
		return fmt.Errorf("script must contain at least one question")
	}
	for i, q := range sc.Questions {
		if q.Text == "" {
			return fmt.Errorf("question %d has empty text", i)
		}
		if q.MaxDuration < 0 {
			return fmt.Errorf("question %d has negative max_duration", i)
		}
	}
	return nil
}

// ModelQuestions converts the script into store question rows, applying the
// default per-answer duration where the file left it unset.
func (sc *Script) ModelQuestions() []model.Question {
	out := make([]model.Question, 0, len(sc.Questions))
	for i, q := range sc.Questions {
		maxDur := q.MaxDuration
		if maxDur == 0 {
			maxDur = 120
		}
		out = append(out, model.Question{Order: i, Text: q.Text, MaxDuration: maxDur})
	}
	return out
}
