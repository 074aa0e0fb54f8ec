package facts

// Delta captures added and removed fact rows between two snapshots, such as
// the same design before and after lowering.
type Delta struct {
	Added   Tables `json:"added"`
	Removed Tables `json:"removed"`
}

// ComputeDelta computes row-level additions and removals between two snapshots.
func ComputeDelta(prev, next Tables) Delta {
	return Delta{
		Added:   diffTables(prev, next),
		Removed: diffTables(next, prev),
	}
}

// Empty reports whether the delta has no rows at all.
func (d Delta) Empty() bool {
	return d.Added.Len() == 0 && d.Removed.Len() == 0
}

// Len is the total number of rows across all relations.
func (t Tables) Len() int {
	n := 0
	for _, c := range t.Counts() {
		n += c
	}
	return n
}

func diffTables(from, to Tables) Tables {
	return Tables{
		Designs:     diffRows(from.Designs, to.Designs),
		Signals:     diffRows(from.Signals, to.Signals),
		Instances:   diffRows(from.Instances, to.Instances),
		ShadowSets:  diffRows(from.ShadowSets, to.ShadowSets),
		Blocks:      diffRows(from.Blocks, to.Blocks),
		Statements:  diffRows(from.Statements, to.Statements),
		References:  diffRows(from.References, to.References),
		Diagnostics: diffRows(from.Diagnostics, to.Diagnostics),
	}
}

// diffRows returns the rows of to missing from from. Rows are compared as
// multisets so duplicate references are counted.
func diffRows[T comparable](from, to []T) []T {
	seen := make(map[T]int, len(from))
	for _, row := range from {
		seen[row]++
	}
	diff := []T{}
	for _, row := range to {
		if seen[row] > 0 {
			seen[row]--
			continue
		}
		diff = append(diff, row)
	}
	return diff
}
