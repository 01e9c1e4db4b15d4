package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    RetryHint
	}{
		{"GENERATION_FAILED: upstream busy", HintWaitAndRetry},
		{"Failed to generate scene 3", HintWaitAndRetry},
		{"timeout while rendering", HintShortenInput},
		{"request Timed Out after 300s", HintShortenInput},
		{"retrieval_failed for scene 2", HintAutomaticFallback},
		{"using fallback download", HintAutomaticFallback},
		{"blocked by Safety system", HintReviseInput},
		{"violates content policy", HintReviseInput},
		{"something odd happened", HintRetryLater},
		{"", HintRetryLater},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			advice := Classify(tt.message)
			assert.Equal(t, tt.want, advice.RetryHint)
			assert.NotEmpty(t, advice.Guidance)
		})
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	// generation failure outranks timeout
	assert.Equal(t, HintWaitAndRetry, Classify("failed to generate: timed out").RetryHint)
	// timeout outranks fallback
	assert.Equal(t, HintShortenInput, Classify("fallback timeout").RetryHint)
	// fallback outranks safety
	assert.Equal(t, HintAutomaticFallback, Classify("safety fallback engaged").RetryHint)
}

func TestClassify_TimeoutGuidance(t *testing.T) {
	advice := Classify("timeout while rendering")
	assert.Contains(t, advice.Guidance, "shorter video")
}
