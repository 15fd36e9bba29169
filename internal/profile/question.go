package profile

import "fmt"

// Bool values used as answers to boolean questions.
const (
	False = 0
	True  = 1
)

// Question is asked of every profile. Answers and criteria refer to a question
// by its text, the value of an answer is an index into Choices.
type Question interface {
	ID() int
	Text() string
	Choices() []string
	Match(expected, actual int) bool
}

type question struct {
	id      int
	text    string
	choices []string
}

func (q *question) ID() int           { return q.id }
func (q *question) Text() string      { return q.text }
func (q *question) Choices() []string { return append([]string(nil), q.choices...) }

// ChoiceIndex returns the index of the given choice or -1.
func ChoiceIndex(q Question, choice string) int {
	for idx, c := range q.Choices() {
		if c == choice {
			return idx
		}
	}
	return -1
}

// BooleanQuestion is a yes/no question. It matches when both sides picked the same choice.
type BooleanQuestion struct {
	question
}

func NewBooleanQuestion(id int, text string) *BooleanQuestion {
	return &BooleanQuestion{question{id: id, text: text, choices: []string{"No", "Yes"}}}
}

func (q *BooleanQuestion) Match(expected, actual int) bool {
	return expected == actual
}

// PercentileQuestion has ordered choices, from the lowest to the highest.
// An actual value at or above the expected one is a match.
type PercentileQuestion struct {
	question
}

func NewPercentileQuestion(id int, text string, choices []string) *PercentileQuestion {
	return &PercentileQuestion{question{id: id, text: text, choices: append([]string(nil), choices...)}}
}

func (q *PercentileQuestion) Match(expected, actual int) bool {
	return expected <= actual
}

// Answer is a choice made for a question.
type Answer struct {
	Question Question
	Value    int
}

func NewAnswer(q Question, value int) *Answer {
	return &Answer{Question: q, Value: value}
}

// QuestionText returns the text of the answered question.
func (a *Answer) QuestionText() string {
	if a == nil || a.Question == nil {
		return ""
	}
	return a.Question.Text()
}

// Match reports whether the answer satisfies the expected one.
// Answers to different questions never match.
func (a *Answer) Match(expected *Answer) bool {
	if a == nil || expected == nil || a.Question == nil {
		return false
	}
	if a.QuestionText() != expected.QuestionText() {
		return false
	}
	return a.Question.Match(expected.Value, a.Value)
}

func (a *Answer) String() string {
	if a == nil || a.Question == nil {
		return "<nil>"
	}
	choices := a.Question.Choices()
	if a.Value >= 0 && a.Value < len(choices) {
		return fmt.Sprintf("%s: %s", a.Question.Text(), choices[a.Value])
	}
	return fmt.Sprintf("%s: %d", a.Question.Text(), a.Value)
}
