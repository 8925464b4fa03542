// Package diff implements a section-aware comparison of two device
// configurations. A section starts at a column-0 line and owns the indented
// lines that follow it; comparison is order-insensitive within a section.
package diff

import "strings"

// ChangeType classifies how a section differs between two configs.
type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Removed  ChangeType = "REMOVED"
	Modified ChangeType = "MODIFIED"
)

// Entry is one changed section in a config diff.
type Entry struct {
	Section     string     `json:"section"`
	ChangeType  ChangeType `json:"change_type"`
	BeforeLines []string   `json:"before_lines"`
	AfterLines  []string   `json:"after_lines"`
}

// Section is a header line plus its indented body, in file order.
type Section struct {
	Header string
	Lines  []string
	order  int
}

// Sections tokenizes a config into sections keyed by their column-0 header
// line. Comment lines (`!` or `#`) and blank lines do not open a section.
// A header's own line is included in the section's line set.
func Sections(cfg string) map[string]*Section {
	out := make(map[string]*Section)
	var current *Section
	order := 0
	for _, raw := range strings.Split(cfg, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		indented := raw[0] == ' ' || raw[0] == '\t'
		if !indented {
			trimmed := strings.TrimRight(raw, " \t")
			if strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#") {
				current = nil
				continue
			}
			// Re-opening a seen header merges into the existing section
			// and keeps its original position.
			if existing, ok := out[trimmed]; ok {
				current = existing
				continue
			}
			current = &Section{Header: trimmed, Lines: []string{trimmed}, order: order}
			out[trimmed] = current
			order++
			continue
		}
		if current != nil {
			current.Lines = append(current.Lines, strings.TrimRight(raw, " \t"))
		}
	}
	return out
}

// Diff computes the section-level changes from before to after.
// Entries are ordered by first appearance in the after config; REMOVED
// sections follow, ordered by first appearance in the before config. The
// ordering is deterministic for identical inputs.
func Diff(before, after string) []Entry {
	bs := Sections(before)
	as := Sections(after)

	var entries []Entry
	for _, sec := range sortedSections(as) {
		old, ok := bs[sec.Header]
		if !ok {
			entries = append(entries, Entry{
				Section:    sec.Header,
				ChangeType: Added,
				AfterLines: append([]string(nil), sec.Lines...),
			})
			continue
		}
		if !sameLineSet(old.Lines, sec.Lines) {
			entries = append(entries, Entry{
				Section:     sec.Header,
				ChangeType:  Modified,
				BeforeLines: append([]string(nil), old.Lines...),
				AfterLines:  append([]string(nil), sec.Lines...),
			})
		}
	}
	for _, sec := range sortedSections(bs) {
		if _, ok := as[sec.Header]; !ok {
			entries = append(entries, Entry{
				Section:     sec.Header,
				ChangeType:  Removed,
				BeforeLines: append([]string(nil), sec.Lines...),
			})
		}
	}
	return entries
}

// sameLineSet compares two line slices as sets (order-insensitive,
// duplicate-sensitive).
func sameLineSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, l := range a {
		counts[l]++
	}
	for _, l := range b {
		counts[l]--
		if counts[l] < 0 {
			return false
		}
	}
	return true
}

func sortedSections(m map[string]*Section) []*Section {
	out := make([]*Section, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	// Insertion sort on first-appearance order; section counts are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].order > out[j].order; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
