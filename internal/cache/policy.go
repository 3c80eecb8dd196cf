package cache

import "sort"

// selectVictims picks up to n eviction candidates from the given live
// entries according to the configured policy kind. Entries are not removed
// here; the store owns the actual removal and accounting.
func selectVictims(entries []*Entry, kind string, n int) []*Entry {
	if n <= 0 || len(entries) == 0 {
		return nil
	}

	candidates := make([]*Entry, len(entries))
	copy(candidates, entries)

	switch kind {
	case EvictionLFU:
		// Stable sort keeps insertion order for equal access counts
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].AccessCount != candidates[j].AccessCount {
				return candidates[i].AccessCount < candidates[j].AccessCount
			}
			return candidates[i].seq < candidates[j].seq
		})
	case EvictionFIFO:
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
				return candidates[i].seq < candidates[j].seq
			}
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		})
	case EvictionTTL:
		// Entries without an expiry sort last; they are the least urgent
		sort.Slice(candidates, func(i, j int) bool {
			ei, ej := candidates[i].ExpiresAt, candidates[j].ExpiresAt
			if ei.IsZero() {
				return false
			}
			if ej.IsZero() {
				return true
			}
			return ei.Before(ej)
		})
	default: // EvictionLRU
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].LastAccessed.Equal(candidates[j].LastAccessed) {
				return candidates[i].seq < candidates[j].seq
			}
			return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
		})
	}

	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// selectSizeVictims picks candidates for size-pressure eviction until the
// accumulated freed bytes reach need. Critical entries are exempt; the rest
// are ordered by priority ascending, then least-recently-accessed within the
// same priority. May return fewer bytes than requested when only critical
// entries remain.
func selectSizeVictims(entries []*Entry, need int64) []*Entry {
	if need <= 0 || len(entries) == 0 {
		return nil
	}

	candidates := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Priority != PriorityCritical {
			candidates = append(candidates, e)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	var freed int64
	victims := make([]*Entry, 0)
	for _, e := range candidates {
		if freed >= need {
			break
		}
		victims = append(victims, e)
		freed += e.SizeBytes
	}
	return victims
}

// countEvictionBatch returns ceil(entryCount * 0.10), the number of entries a
// count-overflow eviction pass removes.
func countEvictionBatch(entryCount int) int {
	if entryCount <= 0 {
		return 0
	}
	return (entryCount + 9) / 10
}
