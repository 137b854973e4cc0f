package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/boswell-ai/boswell/internal/storage"
	"github.com/boswell-ai/boswell/pkg/types"
)

// maxChunkRunes bounds the text handed to the extractor reasoner per call.
// Chunks break on paragraph boundaries where possible.
const maxChunkRunes = 4000

// Extract delegates to the external extractor reasoner and asserts the
// proposals through the normal duplicate-detection path.
func (b *Boswell) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", storage.ErrInvalid)
	}
	if req.Tier == "" {
		req.Tier = types.TierEphemeral
	}

	reasoner, err := b.registry.Reasoner("")
	if err != nil {
		return nil, err
	}

	result := &ExtractResult{}
	for _, chunk := range chunkText(req.Text, maxChunkRunes) {
		proposals, err := reasoner.ExtractClaims(ctx, chunk, "namespace "+req.Namespace)
		if err != nil {
			return nil, err
		}

		for _, p := range proposals {
			tier := req.Tier
			res, err := b.Assert(ctx, AssertInput{
				Subject:       p.Subject,
				Predicate:     p.Predicate,
				Object:        p.Object,
				RawExpression: p.RawExpression,
				Namespace:     req.Namespace,
				SourceType:    types.SourceExtraction,
				SourceID:      req.SourceID,
				Contribution:  p.Confidence,
				TargetTier:    &tier,
			})
			if err != nil {
				if storage.Fatal(err) {
					continue
				}
				return nil, err
			}
			result.Results = append(result.Results, *res)
			switch res.Outcome {
			case OutcomeCreated:
				result.CreatedCount++
			case OutcomeCorroborated:
				result.CorroboratedCount++
			}
		}
	}
	return result, nil
}

// chunkText splits text into runs of at most maxRunes, preferring paragraph
// boundaries and falling back to a hard split for oversized paragraphs.
func chunkText(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		// Hard-split paragraphs that alone exceed the budget.
		for len([]rune(p)) > maxRunes {
			flush()
			runes := []rune(p)
			chunks = append(chunks, string(runes[:maxRunes]))
			p = string(runes[maxRunes:])
		}

		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(p))+2 > maxRunes {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return chunks
}
