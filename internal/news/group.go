package news

// GroupByBias partitions articles by label. Every label is present in the
// result, input order is kept within a group, and unknown labels are dropped.
func GroupByBias(articles []Article) map[BiasLabel][]Article {
	groups := make(map[BiasLabel][]Article, len(Labels))
	for _, l := range Labels {
		groups[l] = []Article{}
	}
	for _, a := range articles {
		if _, ok := groups[a.Bias]; ok {
			groups[a.Bias] = append(groups[a.Bias], a)
		}
	}
	return groups
}

// SourceNames returns the distinct source names in first-seen order.
func SourceNames(articles []Article) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, a := range articles {
		if a.SourceName == "" {
			continue
		}
		if _, ok := seen[a.SourceName]; ok {
			continue
		}
		seen[a.SourceName] = struct{}{}
		names = append(names, a.SourceName)
	}
	return names
}

// Dedupe drops articles whose key was already seen, keeping the first.
func Dedupe(articles []Article) []Article {
	seen := make(map[Key]struct{}, len(articles))
	out := make([]Article, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.Key()]; ok {
			continue
		}
		seen[a.Key()] = struct{}{}
		out = append(out, a)
	}
	return out
}
