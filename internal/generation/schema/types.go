package schema

import (
	"encoding/json"
	"strings"
)

// Kind names a result shape. It is also the schema name reported in diagnostics.
type Kind string

const (
	KindMCQSet       Kind = "mcq-set"
	KindFlashcardSet Kind = "flashcard-set"
	KindTestSet      Kind = "test-set"
	KindSummary      Kind = "summary"
	KindRAGAnswer    Kind = "rag-answer"
	KindTopicList    Kind = "topic-list"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"

	TestTypeMCQ         = "mcq"
	TestTypeShortAnswer = "short_answer"
	TestTypeTrueFalse   = "true_false"
)

var ChoiceKeys = []string{"A", "B", "C", "D"}

func IsDifficulty(s string) bool {
	switch s {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Choice struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type MCQItem struct {
	ID            string   `json:"id"`
	QuestionID    int      `json:"questionId"`
	Question      string   `json:"question"`
	Choices       []Choice `json:"choices"`
	CorrectOption string   `json:"correctOption"`
	Explanation   []string `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
	Tags          []string `json:"tags"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

type MCQSet struct {
	MCQs []MCQItem `json:"mcqs"`
}

type FlashcardItem struct {
	ID    string `json:"id,omitempty"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

type FlashcardSet struct {
	Flashcards []FlashcardItem `json:"flashcards"`
}

type TestItem struct {
	Question string   `json:"question"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
}

type TestSet struct {
	Test []TestItem `json:"test"`
}

type Summary struct {
	Summary string `json:"summary"`
}

type RAGAnswer struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

type WeightedTopic struct {
	Topic  string   `json:"topic"`
	Weight *float64 `json:"weight,omitempty"`
}

// UnmarshalJSON also accepts a bare string, which some models emit instead
// of the {topic, weight} object.
func (w *WeightedTopic) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		w.Topic = strings.TrimSpace(s)
		w.Weight = nil
		return nil
	}
	type plain WeightedTopic
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*w = WeightedTopic(p)
	w.Topic = strings.TrimSpace(w.Topic)
	return nil
}

type TopicList struct {
	Topics []WeightedTopic `json:"topics"`
}
