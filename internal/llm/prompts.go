package llm

import (
	"fmt"
	"strings"

	"github.com/boswell-ai/boswell/pkg/types"
)

// Prompt templates for the prompt-driven reasoner. Every prompt demands a
// bare JSON answer; the parser strips code fences and stray prose anyway.

const extractClaimsPrompt = `You distill factual claims from text into subject/predicate/object triples.

Text:
%s

%s
Return ONLY a JSON object of the form:
{"claims": [{"subject": "...", "predicate": "...", "object": "...", "raw_expression": "...", "confidence": 0.0}]}

Rules:
- subject, predicate and object are short strings; raw_expression preserves the original nuance.
- confidence is your belief in the claim being stated by the text, in [0, 1].
- Extract only claims the text actually asserts. No speculation.`

const evaluatePromotionPrompt = `You are the gatekeeper for a tiered memory store. A writer wants to place a claim at tier %q.

Candidate claim:
%s

Writer advocacy: perceived_importance=%.2f advocacy_confidence=%.2f

Existing claims at that tier in the same namespace:
%s

Decide whether the claim belongs at the requested tier. Return ONLY JSON:
{"decision": "accept" | "downgrade" | "reject_to_ephemeral", "downgrade_to": "ephemeral|task|project", "reasoning": "..."}

Rules:
- "accept" places it at the requested tier.
- "downgrade" places it at downgrade_to, which must be below the requested tier.
- "reject_to_ephemeral" places it at ephemeral.
- reasoning is one or two sentences and is recorded permanently.`

const synthesizePrompt = `You synthesize higher-level claims from a cluster of related claims in namespace %q.

Cluster:
%s

Return ONLY JSON:
{"proposals": [{"subject": "...", "predicate": "...", "object": "...", "raw_expression": "...", "lo": 0.0, "hi": 0.0}]}

Rules:
- Each proposal must follow from the cluster, not introduce outside knowledge.
- lo must not exceed the smallest lower bound among the parents; hi must not exceed the largest upper bound. Derived claims are wider, never sharper.`

const detectContradictionsPrompt = `You judge whether claim pairs semantically contradict each other.

Pairs:
%s

Return ONLY JSON:
{"verdicts": [{"contradicts": true, "rationale": "..."}]}

Return one verdict per pair, in order. Different values for the same property contradict; complementary facts do not.`

const evaluateConfidencePrompt = `You evaluate how much the following claims should be trusted in the context of this query:

Query context: %s

Claims:
%s

Return ONLY JSON:
{"intervals": [{"lo": 0.0, "hi": 0.0, "reasoning": "..."}]}

Return one interval per claim, in order, each with 0 <= lo <= hi <= 1.`

const classifyDomainPrompt = `Assign the claim to exactly one of the given domain profiles.

Claim:
%s

Profiles: %s

Return ONLY JSON: {"domain": "...", "confidence": 0.0}`

// formatClaim renders a claim for prompt context.
func formatClaim(c types.Claim) string {
	return fmt.Sprintf("- (%s, %s, %s) [%.2f, %.2f] tier=%s: %s",
		c.Subject, c.Predicate, c.Object,
		c.BaseConfidence.Lo, c.BaseConfidence.Hi, c.Tier, c.RawExpression)
}

func formatClaims(claims []types.Claim) string {
	if len(claims) == 0 {
		return "(none)"
	}
	lines := make([]string, len(claims))
	for i, c := range claims {
		lines[i] = formatClaim(c)
	}
	return strings.Join(lines, "\n")
}

func formatPairs(pairs []ClaimPair) string {
	lines := make([]string, 0, len(pairs)*2)
	for i, p := range pairs {
		lines = append(lines,
			fmt.Sprintf("Pair %d:", i+1),
			"  A: "+formatClaim(p.A),
			"  B: "+formatClaim(p.B))
	}
	return strings.Join(lines, "\n")
}
