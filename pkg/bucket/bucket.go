package bucket

import "hash/fnv"

// resolution is the number of discrete buckets. 10000 gives two decimal
// places of percentage resolution, which is enough to express rollout
// percentages like 0.25% without collapsing them to zero.
const resolution = 10000

// Bucket returns a deterministic position in [0,1) for the given user and
// scope identities.
//
// The algorithm is pinned and must not change: FNV-1a 32-bit over the UTF-8
// bytes of userID, a single ':' separator, and scopeID, reduced modulo 10000
// and normalized. The separator prevents ("ab","c") and ("a","bc") from
// hashing identically.
func Bucket(userID, scopeID string) float64 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{':'})
	h.Write([]byte(scopeID))
	return float64(h.Sum32()%resolution) / resolution
}

// InRollout reports whether the identity falls inside a staged rollout of the
// given percentage. Percentages at or below zero never match and percentages
// at or above 100 always match, regardless of the bucket.
func InRollout(userID, scopeID string, percentage float64) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	return Bucket(userID, scopeID)*100 <= percentage
}

// PickWeighted selects a slot from the weighted list for the given identity.
// It walks the weights in order, accumulating each positive weight's share of
// the total, and returns the index of the first slot whose cumulative share
// covers the identity's bucket. It returns -1 when the list is empty or the
// total weight is not positive.
//
// The selection is a pure function of (userID, scopeID, weights): the same
// identity keeps the same slot for as long as the weight list is unchanged.
// Editing the list may reshuffle assignments for all identities.
func PickWeighted(userID, scopeID string, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}

	b := Bucket(userID, scopeID)
	last := -1
	var cumulative float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w / total
		last = i
		if b <= cumulative {
			return i
		}
	}
	// Floating point accumulation can leave cumulative fractionally below 1;
	// the final positive slot owns the remainder.
	return last
}
