package schema

func stringSchema() map[string]any {
	return map[string]any{"type": "string"}
}

func nonEmptyStringSchema() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func stringArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

func enumSchema(values ...string) map[string]any {
	arr := make([]any, 0, len(values))
	for _, v := range values {
		arr = append(arr, v)
	}
	return map[string]any{"type": "string", "enum": arr}
}

func object(properties map[string]any, required ...string) map[string]any {
	req := make([]any, 0, len(required))
	for _, r := range required {
		req = append(req, r)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   req,
	}
}

func arrayOf(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func mcqSetSchema() map[string]any {
	keys := make([]string, len(ChoiceKeys))
	copy(keys, ChoiceKeys)
	choice := object(map[string]any{
		"key":  enumSchema(keys...),
		"text": nonEmptyStringSchema(),
	}, "key", "text")

	item := object(map[string]any{
		"id":         stringSchema(),
		"questionId": map[string]any{"type": "integer"},
		"question":   nonEmptyStringSchema(),
		"choices": map[string]any{
			"type":     "array",
			"items":    choice,
			"minItems": 4,
			"maxItems": 4,
		},
		"correctOption": stringSchema(),
		"explanation":   stringArraySchema(),
		"difficulty":    enumSchema(DifficultyEasy, DifficultyMedium, DifficultyHard),
		"tags":          stringArraySchema(),
		"confidence": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
	}, "id", "questionId", "question", "choices", "correctOption", "explanation", "difficulty", "tags")

	return object(map[string]any{"mcqs": arrayOf(item)}, "mcqs")
}

func flashcardSetSchema() map[string]any {
	item := object(map[string]any{
		"id":    stringSchema(),
		"front": nonEmptyStringSchema(),
		"back":  nonEmptyStringSchema(),
	}, "front", "back")
	return object(map[string]any{"flashcards": arrayOf(item)}, "flashcards")
}

func testSetSchema() map[string]any {
	item := object(map[string]any{
		"question": nonEmptyStringSchema(),
		"type":     enumSchema(TestTypeMCQ, TestTypeShortAnswer, TestTypeTrueFalse),
		"options": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
		"answer": stringSchema(),
	}, "question", "type", "answer")
	return object(map[string]any{"test": arrayOf(item)}, "test")
}

func summarySchema() map[string]any {
	return object(map[string]any{"summary": stringSchema()}, "summary")
}

func ragAnswerSchema() map[string]any {
	return object(map[string]any{
		"answer": stringSchema(),
		"citations": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
	}, "answer")
}

func topicListSchema() map[string]any {
	entry := map[string]any{
		"anyOf": []any{
			stringSchema(),
			object(map[string]any{
				"topic":  stringSchema(),
				"weight": map[string]any{"type": "number"},
			}, "topic"),
		},
	}
	return object(map[string]any{"topics": arrayOf(entry)}, "topics")
}

// Definition returns the JSON schema document for kind, or nil for an unknown kind.
func Definition(kind Kind) map[string]any {
	switch kind {
	case KindMCQSet:
		return mcqSetSchema()
	case KindFlashcardSet:
		return flashcardSetSchema()
	case KindTestSet:
		return testSetSchema()
	case KindSummary:
		return summarySchema()
	case KindRAGAnswer:
		return ragAnswerSchema()
	case KindTopicList:
		return topicListSchema()
	default:
		return nil
	}
}
