package moderator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmora/backend/internal/domain"
)

func weatherIntent() domain.Intent {
	return domain.Intent{
		Label:         domain.LabelWeather,
		RequiredTools: []domain.ToolKind{domain.ToolWeather},
		Entities:      map[string]string{domain.EntityDistrict: "Chennai", domain.EntityState: "Tamil Nadu"},
	}
}

func failedContext(kinds ...domain.ToolKind) *domain.AssembledContext {
	return &domain.AssembledContext{Empty: true, AttemptedTools: kinds, FailedTools: kinds}
}

func TestCheck_Classification(t *testing.T) {
	m := New(nil, 0.2)

	d := m.Check(StageClassification, Output{Question: "  "})
	require.Equal(t, Abort, d.Verdict)
	assert.ErrorIs(t, d.Err, domain.ErrInput)

	d = m.Check(StageClassification, Output{Question: "hmm"})
	assert.Equal(t, Proceed, d.Verdict)
	assert.Equal(t, StageClassification, d.Stage)
}

func TestCheck_Assembly(t *testing.T) {
	both := []domain.ToolKind{domain.ToolWeather, domain.ToolMarketPrice}

	tests := []struct {
		name      string
		out       Output
		verdict   Verdict
		prior     bool
		noData    bool
		errorKind domain.ErrorKind
	}{
		{
			name:    "facts present",
			out:     Output{Intent: weatherIntent(), Context: &domain.AssembledContext{Facts: []domain.Fact{{Text: "x"}}}},
			verdict: Proceed,
		},
		{
			name:    "no tools required",
			out:     Output{Intent: domain.Intent{Label: domain.LabelGeneral}, Context: &domain.AssembledContext{Empty: true}},
			verdict: Proceed,
			noData:  true,
		},
		{
			name:    "empty on first attempt retries",
			out:     Output{Intent: weatherIntent(), Context: failedContext(domain.ToolWeather)},
			verdict: RetryWithFallback,
		},
		{
			name:      "all failed after retry aborts",
			out:       Output{Attempt: 1, Intent: domain.Intent{RequiredTools: both}, Context: failedContext(both...)},
			verdict:   Abort,
			errorKind: domain.KindAllToolsFailed,
		},
		{
			name:    "all failed after retry with prior context",
			out:     Output{Attempt: 1, Intent: weatherIntent(), Context: failedContext(domain.ToolWeather), HasPriorContext: true},
			verdict: Proceed,
			prior:   true,
		},
		{
			name: "tools answered without facts",
			out: Output{Attempt: 1, Intent: domain.Intent{RequiredTools: both}, Context: &domain.AssembledContext{
				Empty: true, AttemptedTools: both, FailedTools: []domain.ToolKind{domain.ToolWeather},
			}},
			verdict: Proceed,
			noData:  true,
		},
	}

	m := New(nil, 0.2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Check(StageAssembly, tt.out)

			assert.Equal(t, tt.verdict, d.Verdict)
			assert.Equal(t, tt.prior, d.UsePriorContext)
			assert.Equal(t, tt.noData, d.NoExternalData)
			if tt.errorKind != "" {
				require.NotNil(t, d.Err)
				assert.Equal(t, tt.errorKind, d.Err.Kind)
			} else {
				assert.Nil(t, d.Err)
			}
		})
	}
}

func TestCheck_AllToolsFailedCarriesTools(t *testing.T) {
	both := []domain.ToolKind{domain.ToolWeather, domain.ToolMarketPrice}

	d := New(nil, 0.2).Check(StageAssembly, Output{Attempt: 1, Intent: domain.Intent{RequiredTools: both}, Context: failedContext(both...)})

	require.NotNil(t, d.Err)
	assert.ErrorIs(t, d.Err, domain.ErrAllToolsFailed)
	assert.Equal(t, both, d.Err.FailedTools)
}

func TestCheck_Synthesis(t *testing.T) {
	m := New(nil, 0.2)
	relevant := &domain.Answer{Text: "Light rain is expected in Chennai tomorrow."}
	offTopic := &domain.Answer{Text: "Cricket is a popular sport."}

	d := m.Check(StageSynthesis, Output{Question: "What's the weather in Chennai tomorrow?", Intent: weatherIntent(), Answer: relevant})
	assert.Equal(t, Proceed, d.Verdict)
	assert.Greater(t, d.Relevance, 0.5)

	d = m.Check(StageSynthesis, Output{Question: "What's the weather in Chennai tomorrow?", Intent: weatherIntent(), Answer: offTopic})
	assert.Equal(t, RetryWithFallback, d.Verdict)

	d = m.Check(StageSynthesis, Output{Attempt: 1, Question: "What's the weather in Chennai tomorrow?", Intent: weatherIntent(), Answer: offTopic})
	require.Equal(t, Abort, d.Verdict)
	assert.ErrorIs(t, d.Err, domain.ErrSynthesisQuality)

	d = m.Check(StageSynthesis, Output{SynthesisErr: errors.New("llm timeout"), Intent: weatherIntent()})
	assert.Equal(t, RetryWithFallback, d.Verdict)
}

// A stage that keeps failing is retried once and then stopped, whatever the
// attempt counter says.
func TestCheck_RetryBound(t *testing.T) {
	m := New(nil, 0.2)
	failing := map[Stage]Output{
		StageAssembly:  {Intent: weatherIntent(), Context: failedContext(domain.ToolWeather)},
		StageSynthesis: {Intent: weatherIntent(), SynthesisErr: errors.New("malformed")},
	}

	for stage, out := range failing {
		retries := 0
		for attempt := 0; attempt < 5; attempt++ {
			out.Attempt = attempt
			d := m.Check(stage, out)
			if d.Verdict == RetryWithFallback {
				retries++
			}
			if attempt >= MaxRetries {
				assert.NotEqual(t, RetryWithFallback, d.Verdict, "stage %s attempt %d", stage, attempt)
			}
		}
		assert.Equal(t, MaxRetries, retries, string(stage))
	}
}

func TestCheck_Final(t *testing.T) {
	m := New(nil, 0.2)

	assert.True(t, m.Check(StageFinal, Output{TranslatedText: ""}).UseWorkingText)
	assert.False(t, m.Check(StageFinal, Output{TranslatedText: "மழை"}).UseWorkingText)
}

type fixedScore float64

func (f fixedScore) Score(string, domain.Intent, string) float64 { return float64(f) }

func TestCheck_PluggableStrategy(t *testing.T) {
	answer := &domain.Answer{Text: "anything"}

	assert.Equal(t, Proceed, New(fixedScore(0.9), 0.5).Check(StageSynthesis, Output{Answer: answer}).Verdict)
	assert.Equal(t, RetryWithFallback, New(fixedScore(0.1), 0.5).Check(StageSynthesis, Output{Answer: answer}).Verdict)
}

func TestKeywordOverlap(t *testing.T) {
	s := KeywordOverlap{}
	in := weatherIntent()

	assert.Zero(t, s.Score("weather?", in, ""))
	assert.Equal(t, 1.0, s.Score("", domain.Intent{Label: domain.LabelGeneral}, "Hello"))
	assert.Greater(t,
		s.Score("What's the weather in Chennai tomorrow?", in, "Rain in Chennai, Tamil Nadu tomorrow."),
		s.Score("What's the weather in Chennai tomorrow?", in, "Rain expected."),
	)
}
