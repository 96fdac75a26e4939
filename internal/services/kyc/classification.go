package kyc

import "strings"

// Outcome is the normalised result of a vendor verification.
type Outcome string

const (
	OutcomeApproved    Outcome = "approved"
	OutcomeRejected    Outcome = "rejected"
	OutcomeProvisional Outcome = "provisional"
)

// Classification maps vendor result codes to outcomes. Anything not listed
// is Rejected, so a vendor adding a new code can never grant a tier.
type Classification struct {
	Version string
	entries map[string]map[string]Outcome
}

func NewClassification(version string, entries map[string]map[string]Outcome) *Classification {
	normalised := make(map[string]map[string]Outcome, len(entries))
	for provider, codes := range entries {
		m := make(map[string]Outcome, len(codes))
		for code, outcome := range codes {
			m[strings.ToLower(code)] = outcome
		}
		normalised[strings.ToLower(provider)] = m
	}
	return &Classification{Version: version, entries: normalised}
}

// Classify looks up (provider, code).
func (c *Classification) Classify(provider, code string) Outcome {
	codes, ok := c.entries[strings.ToLower(provider)]
	if !ok {
		return OutcomeRejected
	}
	if o, ok := codes[strings.ToLower(strings.TrimSpace(code))]; ok {
		return o
	}
	return OutcomeRejected
}

const (
	ProviderSmileID        = "smile_id"
	ProviderStripeIdentity = "stripe_identity"
)

// DefaultClassification is the current code table.
func DefaultClassification() *Classification {
	return NewClassification("2025-01", map[string]map[string]Outcome{
		ProviderSmileID: {
			"0810": OutcomeApproved,    // document verified
			"1012": OutcomeApproved,    // id number validated
			"1020": OutcomeApproved,    // exact match
			"1021": OutcomeProvisional, // partial match
			"0812": OutcomeProvisional, // under manual review
			"0811": OutcomeRejected,    // document not verified
			"1013": OutcomeRejected,    // id number not found
			"1022": OutcomeRejected,    // no match
		},
		ProviderStripeIdentity: {
			"verified":       OutcomeApproved,
			"processing":     OutcomeProvisional,
			"requires_input": OutcomeRejected,
			"canceled":       OutcomeRejected,
		},
	})
}
