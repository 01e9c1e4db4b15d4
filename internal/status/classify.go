package status

import "strings"

// RetryHint tells the user what kind of recovery applies.
type RetryHint string

const (
	HintWaitAndRetry      RetryHint = "wait_and_retry"
	HintShortenInput      RetryHint = "shorten_input"
	HintAutomaticFallback RetryHint = "automatic_fallback"
	HintReviseInput       RetryHint = "revise_input"
	HintRetryLater        RetryHint = "retry_later"
)

// Advice is the advisory verdict for a pipeline error message.
type Advice struct {
	RetryHint RetryHint `json:"retryHint"`
	Guidance  string    `json:"guidance"`
}

type rule struct {
	needles []string
	advice  Advice
}

// Order matters: the first matching rule wins.
var rules = []rule{
	{
		needles: []string{"generation_failed", "failed to generate"},
		advice: Advice{
			RetryHint: HintWaitAndRetry,
			Guidance:  "Transient overload: wait a moment and retry, or shorten the input.",
		},
	},
	{
		needles: []string{"timeout", "timed out"},
		advice: Advice{
			RetryHint: HintShortenInput,
			Guidance:  "Operation timed out: try a shorter video or check your connection.",
		},
	},
	{
		needles: []string{"retrieval_failed", "fallback"},
		advice: Advice{
			RetryHint: HintAutomaticFallback,
			Guidance:  "Artifact was generated but retrieval failed: automatic fallback retrieval is in progress.",
		},
	},
	{
		needles: []string{"safety", "content policy"},
		advice: Advice{
			RetryHint: HintReviseInput,
			Guidance:  "Content was flagged by the safety filter: revise the input.",
		},
	},
}

var defaultAdvice = Advice{
	RetryHint: HintRetryLater,
	Guidance:  "Please retry shortly; contact support if the problem persists.",
}

// Classify maps a raw error message to advice. It is pure and never changes
// polling behavior.
func Classify(message string) Advice {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(lower, needle) {
				return r.advice
			}
		}
	}
	return defaultAdvice
}
