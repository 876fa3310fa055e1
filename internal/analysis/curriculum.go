package analysis

// Curriculum is an optional enrichment hook: implementations map an analysis
// topic (e.g. "patience_candle", "key_levels") to a lesson reference that
// recommendations can cite. Resolved at construction time, never lazily.
type Curriculum interface {
	LessonFor(topic string) (string, bool)
}

// NoopCurriculum is the stub used when no curriculum source is wired.
type NoopCurriculum struct{}

// LessonFor always reports no lesson.
func (NoopCurriculum) LessonFor(string) (string, bool) { return "", false }
