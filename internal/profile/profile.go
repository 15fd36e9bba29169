package profile

// Profile is a registered candidate. Answers are keyed by question text.
type Profile struct {
	ID      string
	answers map[string]*Answer
}

func New(id string) *Profile {
	return &Profile{ID: id, answers: make(map[string]*Answer)}
}

// Add stores the answer, replacing a previous answer to the same question.
func (p *Profile) Add(answer *Answer) {
	if answer == nil || answer.Question == nil {
		return
	}
	if p.answers == nil {
		p.answers = make(map[string]*Answer)
	}
	p.answers[answer.QuestionText()] = answer
}

// Answers returns a copy of the profile answers.
func (p *Profile) Answers() map[string]*Answer {
	answers := make(map[string]*Answer, len(p.answers))
	for text, answer := range p.answers {
		answers[text] = answer
	}
	return answers
}

// MatchSet evaluates the profile against criteria.
func (p *Profile) MatchSet(criteria *Criteria) *MatchSet {
	return NewMatchSet(p.ID, p.Answers(), criteria)
}

func (p *Profile) String() string {
	return p.ID
}

// MatchSet is the result of evaluating one profile against criteria.
// It is immutable after creation.
type MatchSet struct {
	profileID string
	answers   map[string]*Answer
	criteria  *Criteria
	score     int64
}

// NewMatchSet builds a match set. Answers and criteria may be nil, such a set never matches.
func NewMatchSet(profileID string, answers map[string]*Answer, criteria *Criteria) *MatchSet {
	s := &MatchSet{profileID: profileID, answers: answers, criteria: criteria}
	s.score = s.calculateScore()
	return s
}

func (s *MatchSet) ProfileID() string { return s.profileID }

func (s *MatchSet) Criteria() *Criteria { return s.criteria }

// Score is the sum of weights of all matching criteria.
func (s *MatchSet) Score() int64 { return s.score }

// Matches is false when any must-match criterion fails,
// otherwise true when at least one criterion matches.
func (s *MatchSet) Matches() bool {
	if s.doesNotMeetAnyMustMatchCriterion() {
		return false
	}
	return s.anyMatches()
}

func (s *MatchSet) answerMatching(c *Criterion) *Answer {
	if s.answers == nil || c.Answer == nil {
		return nil
	}
	return s.answers[c.Answer.QuestionText()]
}

func (s *MatchSet) doesNotMeetAnyMustMatchCriterion() bool {
	for _, c := range s.criteria.Items() {
		if c.Weight == MustMatch && !c.Matches(s.answerMatching(c)) {
			return true
		}
	}
	return false
}

func (s *MatchSet) anyMatches() bool {
	for _, c := range s.criteria.Items() {
		if c.Matches(s.answerMatching(c)) {
			return true
		}
	}
	return false
}

func (s *MatchSet) calculateScore() int64 {
	var score int64
	for _, c := range s.criteria.Items() {
		if c.Matches(s.answerMatching(c)) {
			score += int64(c.Weight)
		}
	}
	return score
}
