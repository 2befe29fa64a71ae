package aggregator

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/ride-hazard-service/internal/domain"
)

// Merge combines records from every source into one snapshot-ready list:
// records with expiresAt <= now or without a cluster id are dropped, each
// cluster id keeps the record with the largest expiresAt (the first seen on
// a tie), and the result is sorted by expiresAt descending, then cluster id.
//
// Only expiry is compared on duplicates; a record with fresher fields but a
// shorter lifetime loses. Merge is idempotent.
func Merge(records []domain.AlertRecord, now time.Time) []domain.AlertRecord {
	cutoff := now.Unix()
	index := make(map[string]int, len(records))
	out := make([]domain.AlertRecord, 0, len(records))

	for _, r := range records {
		if r.ClusterID == "" || r.ExpiresAt <= cutoff {
			continue
		}
		if i, ok := index[r.ClusterID]; ok {
			if r.ExpiresAt > out[i].ExpiresAt {
				out[i] = r
			}
			continue
		}
		index[r.ClusterID] = len(out)
		out = append(out, r)
	}

	slices.SortFunc(out, func(a, b domain.AlertRecord) int {
		if c := cmp.Compare(b.ExpiresAt, a.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.ClusterID, b.ClusterID)
	})
	return out
}
