package sliceutils

// Cut slices with python-style negative indexing: Cut(s, -n, len(s)) keeps
// exactly the last n elements.
func Cut[T any](slice []T, start, end int) []T {
	if len(slice) == 0 {
		return slice
	}

	if start < 0 {
		start = len(slice) + start
	}
	if end < 0 {
		end = len(slice) + end
	}

	start = max(start, 0)
	end = min(end, len(slice))
	if start > end {
		return slice[:0]
	}

	return slice[start:end]
}
