// Package schema defines the result shapes of each generation task and
// validates parsed model output against them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
)

// Result is either a validated value or the diagnostic explaining why the
// parsed output was rejected.
type Result[T any] struct {
	Value      T
	Diagnostic *generr.ValidationError
}

func (r Result[T]) OK() bool { return r.Diagnostic == nil }

// Unwrap converts the result into the usual value/error pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Diagnostic != nil {
		return r.Value, r.Diagnostic
	}
	return r.Value, nil
}

func fail[T any](kind Kind, raw, constraint string) Result[T] {
	return Result[T]{Diagnostic: &generr.ValidationError{
		Schema:     string(kind),
		Constraint: constraint,
		Raw:        raw,
	}}
}

var (
	compiledMu sync.Mutex
	compiled   = map[Kind]*gojsonschema.Schema{}
)

func compiledSchema(kind Kind) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[kind]; ok {
		return s, nil
	}
	def := Definition(kind)
	if def == nil {
		return nil, fmt.Errorf("unknown schema kind %q", kind)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", kind, err)
	}
	compiled[kind] = s
	return s, nil
}

// maxReportedViolations caps how many schema violations go into one diagnostic.
const maxReportedViolations = 3

// decode runs the structural JSON schema check and then decodes into out.
// It returns the violated constraint, or "" on success.
func decode(kind Kind, parsed any, out any) string {
	doc, err := json.Marshal(parsed)
	if err != nil {
		return "value is not JSON encodable: " + err.Error()
	}
	s, err := compiledSchema(kind)
	if err != nil {
		return err.Error()
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return "schema check failed: " + err.Error()
	}
	if !res.Valid() {
		errs := res.Errors()
		parts := make([]string, 0, maxReportedViolations)
		for i, e := range errs {
			if i == maxReportedViolations {
				parts = append(parts, fmt.Sprintf("and %d more", len(errs)-maxReportedViolations))
				break
			}
			parts = append(parts, e.String())
		}
		return strings.Join(parts, "; ")
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return "type mismatch: " + err.Error()
	}
	return ""
}

func ValidateMCQSet(parsed any, raw string) Result[MCQSet] {
	var set MCQSet
	if c := decode(KindMCQSet, parsed, &set); c != "" {
		return fail[MCQSet](KindMCQSet, raw, c)
	}
	for i, q := range set.MCQs {
		if c := checkMCQItem(q); c != "" {
			return fail[MCQSet](KindMCQSet, raw, fmt.Sprintf("mcqs[%d] %s", i, c))
		}
	}
	if set.MCQs == nil {
		set.MCQs = []MCQItem{}
	}
	return Result[MCQSet]{Value: set}
}

func checkMCQItem(q MCQItem) string {
	seen := make(map[string]bool, len(q.Choices))
	for _, ch := range q.Choices {
		if seen[ch.Key] {
			return fmt.Sprintf("choice key %q repeated", ch.Key)
		}
		seen[ch.Key] = true
	}
	for _, k := range ChoiceKeys {
		if !seen[k] {
			return fmt.Sprintf("choice key %q missing", k)
		}
	}
	if !seen[q.CorrectOption] {
		return fmt.Sprintf("correctOption %q is not one of the choice keys A-D", q.CorrectOption)
	}
	if !IsDifficulty(q.Difficulty) {
		return fmt.Sprintf("difficulty %q must be easy, medium or hard", q.Difficulty)
	}
	if q.Confidence != nil && (*q.Confidence < 0 || *q.Confidence > 1) {
		return fmt.Sprintf("confidence %v outside [0,1]", *q.Confidence)
	}
	return ""
}

func ValidateFlashcardSet(parsed any, raw string) Result[FlashcardSet] {
	var set FlashcardSet
	if c := decode(KindFlashcardSet, parsed, &set); c != "" {
		return fail[FlashcardSet](KindFlashcardSet, raw, c)
	}
	if set.Flashcards == nil {
		set.Flashcards = []FlashcardItem{}
	}
	return Result[FlashcardSet]{Value: set}
}

func ValidateTestSet(parsed any, raw string) Result[TestSet] {
	var set TestSet
	if c := decode(KindTestSet, parsed, &set); c != "" {
		return fail[TestSet](KindTestSet, raw, c)
	}
	for i, item := range set.Test {
		if c := checkTestItem(item); c != "" {
			return fail[TestSet](KindTestSet, raw, fmt.Sprintf("test[%d] %s", i, c))
		}
	}
	if set.Test == nil {
		set.Test = []TestItem{}
	}
	return Result[TestSet]{Value: set}
}

func checkTestItem(item TestItem) string {
	if item.Type != TestTypeMCQ {
		if len(item.Options) > 0 {
			return fmt.Sprintf("options present on a %s item", item.Type)
		}
		return ""
	}
	if len(item.Options) == 0 {
		return "mcq item has no options"
	}
	for _, opt := range item.Options {
		if opt == item.Answer {
			return ""
		}
	}
	return fmt.Sprintf("answer %q is not one of the options", item.Answer)
}

func ValidateSummary(parsed any, raw string) Result[Summary] {
	var s Summary
	if c := decode(KindSummary, parsed, &s); c != "" {
		return fail[Summary](KindSummary, raw, c)
	}
	return Result[Summary]{Value: s}
}

func ValidateRAGAnswer(parsed any, raw string) Result[RAGAnswer] {
	var a RAGAnswer
	if c := decode(KindRAGAnswer, parsed, &a); c != "" {
		return fail[RAGAnswer](KindRAGAnswer, raw, c)
	}
	if a.Citations == nil {
		a.Citations = []string{}
	}
	return Result[RAGAnswer]{Value: a}
}

func ValidateTopicList(parsed any, raw string) Result[TopicList] {
	var tl TopicList
	if c := decode(KindTopicList, parsed, &tl); c != "" {
		return fail[TopicList](KindTopicList, raw, c)
	}
	return Result[TopicList]{Value: tl}
}
