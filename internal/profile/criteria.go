package profile

import (
	"fmt"
	"math"
	"strings"
)

// Weight tells how important a criterion is.
type Weight int64

const (
	DontCare      Weight = 0
	WouldPrefer   Weight = 100
	Important     Weight = 1000
	VeryImportant Weight = 10000
	MustMatch     Weight = math.MaxInt32
)

var weightNames = map[string]Weight{
	"must-match":     MustMatch,
	"very-important": VeryImportant,
	"important":      Important,
	"would-prefer":   WouldPrefer,
	"dont-care":      DontCare,
}

// ParseWeight converts a kebab-case weight name into Weight.
func ParseWeight(name string) (Weight, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "_", "-")
	if w, ok := weightNames[key]; ok {
		return w, nil
	}
	return 0, fmt.Errorf("unknown weight %q", name)
}

func (w Weight) String() string {
	for name, value := range weightNames {
		if value == w {
			return name
		}
	}
	return fmt.Sprintf("weight(%d)", int64(w))
}

// Criterion is an expected answer with its weight.
type Criterion struct {
	Answer *Answer
	Weight Weight
}

func NewCriterion(answer *Answer, weight Weight) *Criterion {
	return &Criterion{Answer: answer, Weight: weight}
}

// Matches reports whether the given answer satisfies the criterion.
// DontCare always matches, a missing answer never does.
func (c *Criterion) Matches(answer *Answer) bool {
	if c.Weight == DontCare {
		return true
	}
	if answer == nil {
		return false
	}
	return answer.Match(c.Answer)
}

// Criteria is the query profiles are matched against.
type Criteria struct {
	items []*Criterion
}

func NewCriteria(items ...*Criterion) *Criteria {
	c := &Criteria{}
	for _, item := range items {
		c.Add(item)
	}
	return c
}

func (c *Criteria) Add(criterion *Criterion) {
	if criterion == nil {
		return
	}
	c.items = append(c.items, criterion)
}

// Items returns the criteria in the order they were added.
func (c *Criteria) Items() []*Criterion {
	if c == nil {
		return nil
	}
	return append([]*Criterion(nil), c.items...)
}

func (c *Criteria) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
