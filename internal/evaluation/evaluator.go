package evaluation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/pkg/logger"
)

//go:embed dataset.json
var defaultDataset []byte

// IntentClassifier is the part of the intent classifier under evaluation.
type IntentClassifier interface {
	Classify(text string, hint domain.Location) domain.Intent
}

type Evaluator struct {
	classifier IntentClassifier
	relevance  moderator.RelevanceStrategy
	threshold  float64
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

// DatasetItem is one labelled question. Answer and Relevant are optional and
// only items carrying both count towards relevance accuracy.
type DatasetItem struct {
	Question       string             `json:"question"`
	ExpectedIntent domain.IntentLabel `json:"expected_intent"`
	District       string             `json:"district,omitempty"`
	State          string             `json:"state,omitempty"`
	Answer         string             `json:"answer,omitempty"`
	Relevant       *bool              `json:"relevant,omitempty"`
}

type LabelStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

type Miss struct {
	Question string             `json:"question"`
	Expected domain.IntentLabel `json:"expected"`
	Got      domain.IntentLabel `json:"got"`
}

type Report struct {
	TotalQuestions    int                               `json:"total_questions"`
	IntentCorrect     int                               `json:"intent_correct"`
	IntentAccuracy    float64                           `json:"intent_accuracy"`
	PerLabel          map[domain.IntentLabel]LabelStats `json:"per_label"`
	Misclassified     []Miss                            `json:"misclassified,omitempty"`
	RelevanceItems    int                               `json:"relevance_items"`
	RelevanceCorrect  int                               `json:"relevance_correct"`
	RelevanceAccuracy float64                           `json:"relevance_accuracy"`
	Threshold         float64                           `json:"threshold"`
}

func NewEvaluator(classifier IntentClassifier, relevance moderator.RelevanceStrategy, threshold float64) *Evaluator {
	if relevance == nil {
		relevance = moderator.KeywordOverlap{}
	}
	return &Evaluator{
		classifier: classifier,
		relevance:  relevance,
		threshold:  threshold,
	}
}

// LoadDataset parses a dataset. An empty input yields the built-in question set.
func LoadDataset(data []byte) (*Dataset, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		data = defaultDataset
	}

	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if _, ok := domain.ParseIntentLabel(string(item.ExpectedIntent)); !ok {
			return nil, fmt.Errorf("item %d: unknown intent label %q", i, item.ExpectedIntent)
		}
	}
	return &dataset, nil
}

// Run pushes every item through the classifier and, where labelled, the
// relevance strategy. Accuracies are percentages.
func (e *Evaluator) Run(dataset *Dataset) *Report {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{
		TotalQuestions: len(dataset.Items),
		PerLabel:       make(map[domain.IntentLabel]LabelStats),
		Threshold:      e.threshold,
	}

	for _, item := range dataset.Items {
		in := e.classifier.Classify(item.Question, domain.Location{District: item.District, State: item.State})

		stats := report.PerLabel[item.ExpectedIntent]
		stats.Total++
		if in.Label == item.ExpectedIntent {
			stats.Correct++
			report.IntentCorrect++
		} else {
			report.Misclassified = append(report.Misclassified, Miss{
				Question: item.Question,
				Expected: item.ExpectedIntent,
				Got:      in.Label,
			})
		}
		report.PerLabel[item.ExpectedIntent] = stats

		if item.Answer == "" || item.Relevant == nil {
			continue
		}
		report.RelevanceItems++
		predicted := e.relevance.Score(item.Question, in, item.Answer) >= e.threshold
		if predicted == *item.Relevant {
			report.RelevanceCorrect++
		}
	}

	report.IntentAccuracy = percent(report.IntentCorrect, report.TotalQuestions)
	report.RelevanceAccuracy = percent(report.RelevanceCorrect, report.RelevanceItems)

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Float64("intent_accuracy", report.IntentAccuracy),
		zap.Float64("relevance_accuracy", report.RelevanceAccuracy),
	)

	return report
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Questions: %d
Intent accuracy: %.1f%% (%d/%d)
Relevance accuracy: %.1f%% (%d/%d, threshold %.2f)

Per label:
`, r.TotalQuestions,
		r.IntentAccuracy, r.IntentCorrect, r.TotalQuestions,
		r.RelevanceAccuracy, r.RelevanceCorrect, r.RelevanceItems, r.Threshold)

	labels := make([]domain.IntentLabel, 0, len(r.PerLabel))
	for l := range r.PerLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	for _, l := range labels {
		s := r.PerLabel[l]
		fmt.Fprintf(&b, "- %s: %d/%d\n", l, s.Correct, s.Total)
	}

	if len(r.Misclassified) > 0 {
		b.WriteString("\nMisclassified:\n")
		for _, m := range r.Misclassified {
			fmt.Fprintf(&b, "- %q expected %s, got %s\n", m.Question, m.Expected, m.Got)
		}
	}
	return b.String()
}
