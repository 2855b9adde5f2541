package reviews

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/defense-intake/pkg/logging"
)

const maxReplyWords = 120

var (
	ErrEmptyDraft  = errors.New("reviews: model returned an empty reply")
	ErrUnsafeDraft = errors.New("reviews: reply failed the output guard")
)

// Generator drafts public replies to reviews.
type Generator struct {
	llm      LLMClient
	firmName string
	logger   *logging.Logger
}

func NewGenerator(llm LLMClient, firmName string, logger *logging.Logger) *Generator {
	if llm == nil {
		panic("reviews: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{llm: llm, firmName: firmName, logger: logger}
}

func (g *Generator) systemPrompt() string {
	return fmt.Sprintf(`You write short public replies to Google reviews for %[1]s, a criminal defense law firm.
Rules:
- Never confirm or deny that the reviewer was a client, and never mention case details.
- Never give legal advice or promise outcomes.
- Thank positive reviewers warmly. For negative reviews, stay calm and invite them to call the office.
- At most %[2]d words, plain text, no hashtags or emojis.
- Sign off as "The %[1]s Team".`, g.firmName, maxReplyWords)
}

// Draft asks the model for a reply and runs it through the output guard.
func (g *Generator) Draft(ctx context.Context, r Review) (string, error) {
	comment := strings.TrimSpace(r.Comment)
	if comment == "" {
		comment = "(no written comment)"
	}
	user := fmt.Sprintf("Reviewer: %s\nRating: %d out of 5\nReview: %s", r.Reviewer, r.Rating, comment)

	resp, err := g.llm.Complete(ctx, LLMRequest{
		System:      []string{g.systemPrompt()},
		Messages:    []Message{{Role: RoleUser, Content: user}},
		MaxTokens:   400,
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	reply, reasons := GuardReply(resp.Text)
	if len(reasons) > 0 {
		g.logger.Warn("reviews: draft blocked", "review_id", r.ID, "reasons", reasons)
		return "", fmt.Errorf("%w: %s", ErrUnsafeDraft, strings.Join(reasons, ", "))
	}
	if reply == "" {
		return "", ErrEmptyDraft
	}
	return reply, nil
}

type guardPattern struct {
	re     *regexp.Regexp
	reason string
}

var guardPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)\b(your|the) (case|charges?) (was|were|has been|have been) (dismissed|reduced|dropped)`), "case_details"},
	{regexp.MustCompile(`(?i)\b(we|i) (represented|defended) you\b`), "client_confirmation"},
	{regexp.MustCompile(`(?i)\bas (your|our) client\b`), "client_confirmation"},
	{regexp.MustCompile(`(?i)\b(guarantee[sd]?|promise[sd]?) (a |an )?(result|outcome|dismissal|acquittal)`), "outcome_promise"},
	{regexp.MustCompile(`(?i)\byou should (plead|not plead|refuse|take the plea)`), "legal_advice"},
	{regexp.MustCompile(`(?i)\b(as an ai|language model)\b`), "ai_identity"},
}

var wrappingQuotes = strings.NewReplacer("“", `"`, "”", `"`)

// GuardReply normalizes a model reply and lists any rule it breaks. Wrapping
// quotes and a leading "Reply:" label are stripped; overlong replies are cut
// at the last sentence that fits.
func GuardReply(text string) (string, []string) {
	out := strings.TrimSpace(wrappingQuotes.Replace(text))
	for _, label := range []string{"Reply:", "Response:"} {
		if len(out) >= len(label) && strings.EqualFold(out[:len(label)], label) {
			out = strings.TrimSpace(out[len(label):])
		}
	}
	if len(out) >= 2 && out[0] == '"' && out[len(out)-1] == '"' {
		out = strings.TrimSpace(out[1 : len(out)-1])
	}

	var reasons []string
	for _, p := range guardPatterns {
		if p.re.MatchString(out) {
			reasons = append(reasons, p.reason)
		}
	}
	return truncateWords(out, maxReplyWords), reasons
}

func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	cut := strings.Join(words[:limit], " ")
	if i := strings.LastIndexAny(cut, ".!?"); i > 0 {
		return cut[:i+1]
	}
	return cut
}
