package clock

import "math"

// Adjust converts a remote timestamp into the local time base by removing
// the peer's clock skew. The result is never negative and never later than
// now: a timestamp that would fall before zero becomes zero, so it loses to
// any local edit.
func Adjust(remote uint64, skew int64, now uint64) uint64 {
	var adjusted uint64
	switch {
	case skew >= 0:
		if remote < uint64(skew) {
			return 0
		}
		adjusted = remote - uint64(skew)
	default:
		back := uint64(-(skew + 1)) + 1
		if remote > math.MaxUint64-back {
			return now
		}
		adjusted = remote + back
	}
	return min(adjusted, now)
}

// Unadjust converts a local timestamp into a peer's time base. Zero stays
// zero so "unknown" survives the round trip.
func Unadjust(local uint64, skew int64) uint64 {
	if local == 0 {
		return 0
	}
	v := int64(local) + skew
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// SameEdit reports whether a packet describes the edit most recently
// accepted from the network, compared in the remote time base.
func SameEdit(remoteLastEdited, lastEditedFromRemoteInRemoteTime uint64) bool {
	return remoteLastEdited == lastEditedFromRemoteInRemoteTime
}

// EditState is the subset of an object's timestamps the acceptance policy
// looks at.
type EditState struct {
	LastEdited           uint64
	LastEditedFromRemote uint64
}

// ShouldIgnore decides whether a packet's contents are stale. A repeat of
// the last accepted edit is dropped only when a local edit happened after
// it arrived; anything else is dropped when the local edit is newer than the
// packet's adjusted edit time.
func ShouldIgnore(st EditState, sameEdit bool, lastEditedAdjusted uint64) bool {
	if sameEdit {
		return st.LastEdited > st.LastEditedFromRemote
	}
	return st.LastEdited > lastEditedAdjusted
}
