package changes

// ChangeSet is an ascending set of 0-based line indices.
type ChangeSet []int

// Len returns the number of changed lines.
func (c ChangeSet) Len() int { return len(c) }

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool { return len(c) == 0 }

// Contains reports whether line i is in the set.
func (c ChangeSet) Contains(i int) bool {
	lo, hi := 0, len(c)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case c[mid] == i:
			return true
		case c[mid] < i:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

// Diff returns the indices where old and new differ.
//
// Lines are compared by index only. An index missing from one side reads as
// the empty string, and every index beyond the shorter sequence is reported
// even when the longer side holds an empty line there.
func Diff(old, new []string) ChangeSet {
	n := max(len(old), len(new))
	shorter := min(len(old), len(new))

	var out ChangeSet
	for i := 0; i < n; i++ {
		if i >= shorter || old[i] != new[i] {
			out = append(out, i)
		}
	}
	return out
}

// Between derives the single delta that turns old into new by trimming the
// common prefix and suffix. ok is false when the sequences are equal.
func Between(old, new []string) (delta EditDelta, ok bool) {
	prefix := 0
	for prefix < len(old) && prefix < len(new) && old[prefix] == new[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(old)-prefix && suffix < len(new)-prefix &&
		old[len(old)-1-suffix] == new[len(new)-1-suffix] {
		suffix++
	}

	delta = EditDelta{
		StartLine:    prefix,
		RemovedCount: len(old) - prefix - suffix,
		AddedCount:   len(new) - prefix - suffix,
	}
	return delta, !delta.IsZero()
}
