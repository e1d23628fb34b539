package market

import "sort"

// Merge combines the historical set with the live set into one Series.
// Rules:
//   - Identity is the timestamp alone; duplicates collapse to a single Bar.
//   - The first occurrence wins, with hist listed ahead of live, so a bar
//     present in both keeps the historical values (conservative bias toward
//     the committed snapshot).
//   - Output is sorted ascending and satisfies the Series invariants.
//
// Pure function: inputs are never mutated and no state is carried between calls.
func Merge(hist, live []Bar) Series {
	if len(hist) == 0 && len(live) == 0 {
		return Series{}
	}
	seen := make(map[int64]struct{}, len(hist)+len(live))
	out := make(Series, 0, len(hist)+len(live))
	for _, set := range [][]Bar{hist, live} {
		for _, b := range set {
			key := b.Timestamp.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
