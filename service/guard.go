package service

import (
	"strings"
)

// LimitationNotice is appended to every answer the system returns, on every
// path: refusals, no-evidence answers and generated answers alike.
const LimitationNotice = "This response is based solely on the documents you uploaded to this case workspace. " +
	"It is not legal advice and does not create an attorney-client relationship. " +
	"Consult a licensed attorney before acting on any of this information."

// refusalText is the fixed answer returned when a question asks for legal
// advice rather than for facts in the evidence.
const refusalText = "I can't help with legal advice, strategy, or predictions about how a case might turn out. " +
	"I can only answer factual questions about the documents and images you uploaded. " +
	"For advice on what to do or argue, please consult a licensed attorney."

// noEvidenceText is the fixed answer when the workspace holds nothing
// relevant to the question. The generation prompt instructs the model to emit
// this exact phrase when context is inadequate, so both paths converge on it.
const noEvidenceText = "There is insufficient evidence in your uploaded documents to answer this question."

// advicePhrases is the ordered pattern list for the advice heuristic. All
// entries are lowercase; matching is case-insensitive substring. The list is
// deduplicated once at package init. Deliberately approximate: this is one
// layer of a multi-layer defense, and both false positives and false
// negatives are acceptable.
var advicePhrases = dedupe([]string{
	// requests for arguments
	"what should i argue",
	"argue in court",
	"best argument",
	"strongest argument",
	"how should i argue",
	"what should i say in court",
	// outcome prediction
	"will i win",
	"can i win",
	"chances of winning",
	"how likely am i to win",
	"what are my odds",
	"will the judge",
	"predict the outcome",
	// litigation-action recommendations
	"should i sue",
	"can i sue",
	"should i settle",
	"should i accept",
	"should i file",
	"what should i do",
	"do i have a case",
	"do i have a claim",
	"how do i sue",
	// statutory interpretation
	"is it legal",
	"is this legal",
	"is it illegal",
	"against the law",
	"what does the law say",
	"what are my rights",
	"my legal rights",
})

// minQuestionLen is the minimum question length (in runes, after trimming)
// before the heuristic applies. Anything shorter is never flagged.
const minQuestionLen = 5

// IsAdviceLike reports whether a question is asking for legal advice,
// strategy or outcome prediction rather than for evidence. Pure and
// stateless.
func IsAdviceLike(question string) bool {
	normalized := strings.ToLower(strings.TrimSpace(question))
	if len([]rune(normalized)) < minQuestionLen {
		return false
	}
	for _, phrase := range advicePhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// RefusalAnswer returns the fixed refusal text plus the shared limitation
// notice.
func RefusalAnswer() (answerText, limitationNotice string) {
	return refusalText, LimitationNotice
}

// dedupe removes duplicate phrases while preserving first-seen order.
func dedupe(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
