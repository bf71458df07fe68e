package scd

import "github.com/MAHI-CHOWDARY/rcm-project/internal/canonicalization"

// Detector classifies an incoming record against the current version of its entity.
type Detector struct {
	normalizer *canonicalization.Normalizer
}

// NewDetector returns a Detector comparing the tracked attributes of n's policy.
func NewDetector(n *canonicalization.Normalizer) *Detector {
	return &Detector{normalizer: n}
}

// Detect returns OutcomeNew when there is no current version, OutcomeUnchanged when every
// tracked attribute matches after normalization, and OutcomeChanged otherwise.
func (d *Detector) Detect(incoming canonicalization.Canonical, current *canonicalization.Canonical) Outcome {
	if current == nil {
		return OutcomeNew
	}

	if d.normalizer.Equal(incoming, *current) {
		return OutcomeUnchanged
	}

	return OutcomeChanged
}
