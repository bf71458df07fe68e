package canonicalization

import (
	"log/slog"
	"strings"
)

// ColumnResolver maps source column headers to the attribute names used by the warehouse.
// It is immutable after construction and safe for concurrent use.
//
// Resolution happens in two steps:
//   - An explicit alias wins ("F_Name" → "FirstName" for hospital_b extracts)
//   - Otherwise headers compare by ColumnName, so "first_name" addresses "FirstName"
type ColumnResolver struct {
	aliases map[string]string
}

// NewColumnResolver builds a resolver from {source column: canonical column}.
// Entries with an empty side are skipped with a warning. A nil map yields a resolver
// that only applies ColumnName matching.
func NewColumnResolver(aliases map[string]string) *ColumnResolver {
	r := &ColumnResolver{aliases: make(map[string]string, len(aliases))}

	for alias, canonical := range aliases {
		alias = strings.TrimSpace(alias)
		canonical = strings.TrimSpace(canonical)

		if alias == "" || canonical == "" {
			slog.Warn("Skipping column alias with empty side",
				slog.String("alias", alias),
				slog.String("canonical", canonical))

			continue
		}

		r.aliases[ColumnName(alias)] = canonical
	}

	return r
}

// AliasCount returns the number of usable aliases.
func (r *ColumnResolver) AliasCount() int {
	if r == nil {
		return 0
	}

	return len(r.aliases)
}

// Resolve returns the canonical column for a header, or the header itself when no alias applies.
func (r *ColumnResolver) Resolve(column string) string {
	if r == nil || column == "" {
		return column
	}

	if canonical, ok := r.aliases[ColumnName(column)]; ok {
		return canonical
	}

	return column
}

// Index locates every wanted attribute in a header row. It returns the column position of
// each wanted name that was found and the wanted names that were not, in wanted order.
// When two headers resolve to the same attribute the first one wins.
func (r *ColumnResolver) Index(header []string, wanted []string) (map[string]int, []string) {
	byID := make(map[string]int, len(header))

	for i, column := range header {
		id := ColumnName(r.Resolve(column))
		if _, seen := byID[id]; !seen {
			byID[id] = i
		}
	}

	positions := make(map[string]int, len(wanted))

	var missing []string

	for _, name := range wanted {
		if i, ok := byID[ColumnName(name)]; ok {
			positions[name] = i

			continue
		}

		missing = append(missing, name)
	}

	return positions, missing
}
