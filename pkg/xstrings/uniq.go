package xstrings

type Comparable interface{ ~int | ~int64 | ~string }

// AppendUnique appends v unless s already contains it. The second return
// value reports whether v was added.
func AppendUnique[T Comparable](s []T, v T) ([]T, bool) {
	for _, e := range s {
		if e == v {
			return s, false
		}
	}
	return append(s, v), true
}
