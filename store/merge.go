package store

import "log/slog"

// Delta is the set of entries an incoming batch altered in a local map
// (§4.1). A TTL-only change carries HasValue=false and no Value bytes.
type Delta map[string]Record

// merge reconciles incoming into local under the deterministic conflict
// rules of §4.1, mutating local in place, and returns exactly the entries
// that changed. log receives protocol-violation diagnostics (§4.1 rule 4);
// it may be nil in tests that don't care about them.
func merge(local map[string]Record, incoming map[string]Record, log *slog.Logger) Delta {
	delta := make(Delta)
	for k, rin := range incoming {
		rlocal, ok := local[k]
		if !ok {
			local[k] = rin
			delta[k] = rin
			continue
		}

		cmp := rin.tuple().compare(rlocal.tuple())
		switch {
		case cmp > 0:
			local[k] = rin
			delta[k] = rin
		case cmp < 0:
			// stale, nothing to do
		default:
			// same (version, originator_id): only a legitimate ttl_version
			// refresh or a protocol violation can follow.
			if rin.Hash != rlocal.Hash {
				if log != nil {
					log.Warn("merge: protocol violation, rejecting record with conflicting hash",
						"key", k, "version", rin.Version, "originator_id", rin.OriginatorId)
				}
				continue
			}
			if rin.TtlVersion > rlocal.TtlVersion {
				updated := rlocal
				updated.TtlMs = rin.TtlMs
				updated.TtlVersion = rin.TtlVersion
				local[k] = updated
				delta[k] = Record{
					Version:      updated.Version,
					OriginatorId: updated.OriginatorId,
					HasValue:     false,
					TtlMs:        updated.TtlMs,
					TtlVersion:   updated.TtlVersion,
					Hash:         updated.Hash,
				}
			}
			// else: equal tuple, non-increasing ttl_version: nothing to do.
		}
	}
	return delta
}
