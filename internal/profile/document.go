package profile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	QuestionTypeBoolean    = "boolean"
	QuestionTypePercentile = "percentile"
)

// QuestionSpec describes a question in the profiles document.
type QuestionSpec struct {
	ID      int      `mapstructure:"id"`
	Text    string   `mapstructure:"text"`
	Type    string   `mapstructure:"type"`
	Choices []string `mapstructure:"choices"`
}

// AnswerSpec refers to a question by id. Value is a choice name, for boolean
// questions anything strconv.ParseBool understands is accepted as well.
type AnswerSpec struct {
	Question int    `mapstructure:"question"`
	Value    string `mapstructure:"value"`
}

type ProfileSpec struct {
	ID      string       `mapstructure:"id"`
	Answers []AnswerSpec `mapstructure:"answers"`
}

// CriterionSpec is an expected answer plus a weight name (see ParseWeight).
type CriterionSpec struct {
	Question int    `mapstructure:"question"`
	Value    string `mapstructure:"value"`
	Weight   string `mapstructure:"weight"`
}

// Document is the decoded profiles file.
type Document struct {
	Questions []QuestionSpec `mapstructure:"questions"`
	Profiles  []ProfileSpec  `mapstructure:"profiles"`

	byID map[int]Question
}

// LoadDocument reads a YAML (or JSON) profiles document.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles document: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes the document and indexes its questions.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing profiles document: %w", err)
	}

	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding profiles document: %w", err)
	}

	if err := doc.index(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) index() error {
	d.byID = make(map[int]Question, len(d.Questions))
	for _, spec := range d.Questions {
		if _, ok := d.byID[spec.ID]; ok {
			return fmt.Errorf("duplicate question id %d", spec.ID)
		}
		text := strings.TrimSpace(spec.Text)
		if text == "" {
			return fmt.Errorf("question %d has no text", spec.ID)
		}

		switch strings.ToLower(strings.TrimSpace(spec.Type)) {
		case "", QuestionTypeBoolean:
			d.byID[spec.ID] = NewBooleanQuestion(spec.ID, text)
		case QuestionTypePercentile:
			if len(spec.Choices) == 0 {
				return fmt.Errorf("percentile question %d has no choices", spec.ID)
			}
			d.byID[spec.ID] = NewPercentileQuestion(spec.ID, text, spec.Choices)
		default:
			return fmt.Errorf("question %d: unknown type %q", spec.ID, spec.Type)
		}
	}
	return nil
}

// Question returns the question with the given id.
func (d *Document) Question(id int) (Question, bool) {
	q, ok := d.byID[id]
	return q, ok
}

// BuildProfiles builds profiles from the document.
func (d *Document) BuildProfiles() ([]*Profile, error) {
	profiles := make([]*Profile, 0, len(d.Profiles))
	for _, spec := range d.Profiles {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return nil, fmt.Errorf("profile without id")
		}

		p := New(id)
		for _, a := range spec.Answers {
			answer, err := d.answer(a.Question, a.Value)
			if err != nil {
				return nil, fmt.Errorf("profile %s: %w", id, err)
			}
			p.Add(answer)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Criteria builds criteria referring to the document questions.
func (d *Document) Criteria(specs []CriterionSpec) (*Criteria, error) {
	criteria := NewCriteria()
	for _, spec := range specs {
		answer, err := d.answer(spec.Question, spec.Value)
		if err != nil {
			return nil, fmt.Errorf("criterion: %w", err)
		}
		weight, err := ParseWeight(spec.Weight)
		if err != nil {
			return nil, fmt.Errorf("criterion for question %d: %w", spec.Question, err)
		}
		criteria.Add(NewCriterion(answer, weight))
	}
	return criteria, nil
}

func (d *Document) answer(questionID int, value string) (*Answer, error) {
	q, ok := d.byID[questionID]
	if !ok {
		return nil, fmt.Errorf("unknown question %d", questionID)
	}

	value = strings.TrimSpace(value)
	if idx := ChoiceIndex(q, value); idx >= 0 {
		return NewAnswer(q, idx), nil
	}

	if _, isBool := q.(*BooleanQuestion); isBool {
		if b, err := strconv.ParseBool(value); err == nil {
			if b {
				return NewAnswer(q, True), nil
			}
			return NewAnswer(q, False), nil
		}
		switch strings.ToLower(value) {
		case "yes":
			return NewAnswer(q, True), nil
		case "no":
			return NewAnswer(q, False), nil
		}
	}

	return nil, fmt.Errorf("question %d: value %q is not one of %v", questionID, value, q.Choices())
}
