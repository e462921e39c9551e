package orchestrator

// Assignment is one topic's share of a requested item count.
type Assignment struct {
	Topic string
	Count int
}

// Distribute splits n across topics in order. Every topic gets n/len(topics)
// (at least 1) and the first n%len(topics) topics get one more. Topics left
// with zero are omitted, which only happens when n < 1.
func Distribute(n int, topics []string) []Assignment {
	if len(topics) == 0 {
		return []Assignment{}
	}
	base, rem := 0, 0
	if n > 0 {
		base = n / len(topics)
		rem = n % len(topics)
		if base < 1 {
			base = 1
			rem = 0
		}
	}
	out := make([]Assignment, 0, len(topics))
	for i, t := range topics {
		count := base
		if i < rem {
			count++
		}
		if count <= 0 {
			continue
		}
		out = append(out, Assignment{Topic: t, Count: count})
	}
	return out
}
