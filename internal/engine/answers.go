package engine

// AnswerStore maps question id to the selected option index. A missing key
// means the question is unanswered.
type AnswerStore map[string]int

// Set records option for questionID, replacing any earlier choice.
func (s AnswerStore) Set(questionID string, option int) {
	s[questionID] = option
}

// Get returns the selected option for questionID.
func (s AnswerStore) Get(questionID string) (int, bool) {
	opt, ok := s[questionID]
	return opt, ok
}

// Snapshot returns a copy safe to hand out.
func (s AnswerStore) Snapshot() map[string]int {
	out := make(map[string]int, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
