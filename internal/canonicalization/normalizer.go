package canonicalization

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for normalizer construction and use.
var (
	// ErrEmptyPolicy is returned when a policy has no key field or no tracked attributes.
	ErrEmptyPolicy = errors.New("normalization policy needs a key field and at least one tracked attribute")

	// ErrDuplicateAttribute is returned when an attribute is tracked twice (including the key).
	ErrDuplicateAttribute = errors.New("attribute listed more than once")

	// ErrUntrackedDateAttribute is returned when a date attribute is not tracked.
	ErrUntrackedDateAttribute = errors.New("date attribute is not tracked")

	// ErrEmptyNaturalKey is returned when a record has a blank natural key.
	ErrEmptyNaturalKey = errors.New("natural key is empty")
)

type (
	// Policy names the key and the change-tracked attributes of one dimension.
	Policy struct {
		KeyField   string
		Tracked    []string
		DateFields []string
	}

	// Normalizer applies one Policy. It is immutable after construction.
	Normalizer struct {
		policy     Policy
		dateFields map[string]bool
	}

	// Canonical is the comparable copy of one record. Values holds one entry per tracked
	// attribute, absent attributes included as "".
	Canonical struct {
		Key    string
		Values map[string]string
	}
)

// NewNormalizer validates the policy and returns a Normalizer for it.
func NewNormalizer(policy Policy) (*Normalizer, error) {
	if strings.TrimSpace(policy.KeyField) == "" || len(policy.Tracked) == 0 {
		return nil, ErrEmptyPolicy
	}

	seen := map[string]bool{ColumnName(policy.KeyField): true}

	for _, attr := range policy.Tracked {
		id := ColumnName(attr)
		if seen[id] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAttribute, attr)
		}

		seen[id] = true
	}

	dateFields := make(map[string]bool, len(policy.DateFields))

	for _, attr := range policy.DateFields {
		if !containsExact(policy.Tracked, attr) {
			return nil, fmt.Errorf("%w: %s", ErrUntrackedDateAttribute, attr)
		}

		dateFields[attr] = true
	}

	tracked := make([]string, len(policy.Tracked))
	copy(tracked, policy.Tracked)
	dates := make([]string, len(policy.DateFields))
	copy(dates, policy.DateFields)

	return &Normalizer{
		policy:     Policy{KeyField: policy.KeyField, Tracked: tracked, DateFields: dates},
		dateFields: dateFields,
	}, nil
}

// KeyField returns the natural key attribute name.
func (n *Normalizer) KeyField() string {
	return n.policy.KeyField
}

// Tracked returns the tracked attribute names in policy order.
func (n *Normalizer) Tracked() []string {
	out := make([]string, len(n.policy.Tracked))
	copy(out, n.policy.Tracked)

	return out
}

// IsDate reports whether attr is parsed as a date rather than folded as text.
func (n *Normalizer) IsDate(attr string) bool {
	return n.dateFields[attr]
}

// Key returns the canonical natural key.
func (n *Normalizer) Key(key string) (string, error) {
	canonical := Text(key)
	if canonical == "" {
		return "", ErrEmptyNaturalKey
	}

	return canonical, nil
}

// Normalize returns the canonical copy of a record. attrs is keyed by tracked attribute
// name and is not modified; missing attributes normalize to "".
//
// Normalize is idempotent: normalizing the Values of a Canonical yields the same Canonical.
func (n *Normalizer) Normalize(key string, attrs map[string]string) (Canonical, error) {
	canonicalKey, err := n.Key(key)
	if err != nil {
		return Canonical{}, err
	}

	values := make(map[string]string, len(n.policy.Tracked))

	for _, attr := range n.policy.Tracked {
		raw := attrs[attr]

		if n.dateFields[attr] {
			value, err := Date(raw)
			if err != nil {
				return Canonical{}, fmt.Errorf("attribute %s: %w", attr, err)
			}

			values[attr] = value

			continue
		}

		values[attr] = Text(raw)
	}

	return Canonical{Key: canonicalKey, Values: values}, nil
}

// NormalizeLenient is Normalize for values already accepted into the warehouse: a date
// attribute that no longer parses falls back to its text form instead of failing. The
// natural key must still be non-empty.
func (n *Normalizer) NormalizeLenient(key string, attrs map[string]string) (Canonical, error) {
	canonicalKey, err := n.Key(key)
	if err != nil {
		return Canonical{}, err
	}

	values := make(map[string]string, len(n.policy.Tracked))

	for _, attr := range n.policy.Tracked {
		raw := attrs[attr]

		if n.dateFields[attr] {
			if value, err := Date(raw); err == nil {
				values[attr] = value

				continue
			}
		}

		values[attr] = Text(raw)
	}

	return Canonical{Key: canonicalKey, Values: values}, nil
}

// Equal reports whether two canonical records agree on every tracked attribute.
func (n *Normalizer) Equal(a, b Canonical) bool {
	for _, attr := range n.policy.Tracked {
		if a.Values[attr] != b.Values[attr] {
			return false
		}
	}

	return true
}

// Fingerprint returns a hex BLAKE2b-256 digest of the canonical tracked values in policy
// order. It is persisted alongside each dimension row as attrs_hash.
func (n *Normalizer) Fingerprint(c Canonical) string {
	h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes

	for _, attr := range n.policy.Tracked {
		value := c.Values[attr]
		// length prefix keeps ("ab","c") distinct from ("a","bc")
		_, _ = fmt.Fprintf(h, "%d:%s;", len(value), value)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func containsExact(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}
