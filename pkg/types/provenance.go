package types

import (
	"fmt"
	"time"
)

// ProvenanceEntry records one source supporting a claim. A claim carries
// zero or more entries; corroboration appends rather than creating rows.
type ProvenanceEntry struct {
	// ClaimID is the claim this entry supports.
	ClaimID ClaimID `json:"claim_id"`

	// SourceType classifies the origin.
	SourceType SourceType `json:"source_type"`

	// SourceID is a free-form source identifier (e.g. "agent:planner",
	// "doc:q3-report").
	SourceID string `json:"source_id"`

	// Timestamp is when the source made its contribution.
	Timestamp time.Time `json:"timestamp"`

	// ConfidenceContribution is this source's confidence in [0, 1]. It feeds
	// the provenance aggregation step of the confidence formula.
	ConfidenceContribution float64 `json:"confidence_contribution"`

	// Context is free text — extraction context, gatekeeper reasoning, or a
	// rationale supplied by the asserting agent.
	Context string `json:"context,omitempty"`
}

// Validate checks the entry's invariants.
func (p *ProvenanceEntry) Validate() error {
	if !p.SourceType.Valid() {
		return fmt.Errorf("types: invalid provenance source type %q", p.SourceType)
	}
	if p.ConfidenceContribution < 0 || p.ConfidenceContribution > 1 {
		return fmt.Errorf("types: confidence contribution %v outside [0, 1]", p.ConfidenceContribution)
	}
	return nil
}
