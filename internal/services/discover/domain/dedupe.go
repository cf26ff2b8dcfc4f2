package domain

// DedupeByURL removes items sharing a URL, keeping the first occurrence.
// Order of the survivors matches the input order.
func DedupeByURL(items []Item) []Item {
	if len(items) <= 1 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}
