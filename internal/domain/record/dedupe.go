package record

import "github.com/ipu-results/result-engine/internal/domain/shared"

// LatestAttempts keeps one row per paper code: the attempt with the strictly
// later declared (year, month). Ties keep the first-seen row. Output order is
// the order in which each paper code first appears.
func LatestAttempts(rows []Row) []Row {
	index := make(map[shared.PaperCode]int, len(rows))
	out := make([]Row, 0, len(rows))

	for _, r := range rows {
		i, seen := index[r.PaperCode]
		if !seen {
			index[r.PaperCode] = len(out)
			out = append(out, r)
			continue
		}
		if r.Declared.After(out[i].Declared) {
			out[i] = r
		}
	}
	return out
}
