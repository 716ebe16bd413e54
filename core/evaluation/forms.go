package evaluation

import (
	"fmt"
	"sort"
	"strings"
)

// score scale
const (
	ScoreMin = 1
	ScoreMax = 5
)

type (
	Criterion struct {
		Key   string `json:"key"`
		Label string `json:"label"`
	}

	Form struct {
		Kind     Kind        `json:"kind"`
		Title    string      `json:"title"`
		ScoreMin int         `json:"score_min"`
		ScoreMax int         `json:"score_max"`
		Criteria []Criterion `json:"criteria"`
	}
)

var (
	InitialForm = Form{
		Kind:     KindInitial,
		Title:    "End of training evaluation",
		ScoreMin: ScoreMin,
		ScoreMax: ScoreMax,
		Criteria: []Criterion{
			{Key: "objectives_clarity", Label: "Clarity of the training objectives"},
			{Key: "content_relevance", Label: "Relevance of the content to the position"},
			{Key: "trainer_mastery", Label: "Trainer's mastery of the subject"},
			{Key: "pedagogy", Label: "Teaching methods and materials"},
			{Key: "organization", Label: "Organization and logistics"},
			{Key: "overall_satisfaction", Label: "Overall satisfaction"},
		},
	}

	FollowUpForm = Form{
		Kind:     KindFollowUp,
		Title:    "6-month follow-up evaluation",
		ScoreMin: ScoreMin,
		ScoreMax: ScoreMax,
		Criteria: []Criterion{
			{Key: "knowledge_application", Label: "Application of the knowledge acquired"},
			{Key: "skill_improvement", Label: "Improvement of professional skills"},
			{Key: "behavior_change", Label: "Change in work behavior"},
			{Key: "work_impact", Label: "Impact on the quality of work"},
			{Key: "autonomy", Label: "Autonomy on the trained tasks"},
		},
	}

	Forms = []Form{InitialForm, FollowUpForm}
)

// FormOf returns the Form used by evaluations of kind `k`.
func FormOf(k Kind) (Form, bool) {
	switch k {
	case KindInitial:
		return InitialForm, true
	case KindFollowUp:
		return FollowUpForm, true
	}
	return Form{}, false
}

func (f Form) has(key string) bool {
	for _, c := range f.Criteria {
		if c.Key == key {
			return true
		}
	}
	return false
}

// checkScores returns a message for each invalid score, sorted by criterion.
func (f Form) checkScores(scores Scores) []string {
	var msgs []string
	for key, val := range scores {
		if !f.has(key) {
			msgs = append(msgs, fmt.Sprintf("unknown criterion %q", key))
			continue
		}
		if val < f.ScoreMin || val > f.ScoreMax {
			msgs = append(msgs, fmt.Sprintf("%s must be between %d and %d", key, f.ScoreMin, f.ScoreMax))
		}
	}
	sort.Strings(msgs)
	return msgs
}

// missing returns the criteria of `f` without a score, in form order.
func (f Form) missing(scores Scores) []string {
	var keys []string
	for _, c := range f.Criteria {
		if _, ok := scores[c.Key]; !ok {
			keys = append(keys, c.Key)
		}
	}
	return keys
}

func joinMsgs(msgs []string) string {
	return strings.Join(msgs, "; ")
}
