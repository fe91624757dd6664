// Package reconcile decides, at login time, which of a device-local guest
// profile and the account's server-side profile becomes authoritative, and
// applies that decision.
package reconcile

import "github.com/kalambet/profilestack/internal/profile"

// Classification is the verdict on a local/remote profile pairing.
type Classification int

const (
	// UseRemote: there is no local data worth keeping; the remote profile
	// (possibly empty) becomes active.
	UseRemote Classification = iota + 1
	// AdoptLocal: the remote profile is empty; local data seeds it.
	AdoptLocal
	// Conflict: both sides carry data and the user has to choose.
	Conflict
)

func (c Classification) String() string {
	switch c {
	case UseRemote:
		return "use_remote"
	case AdoptLocal:
		return "adopt_local"
	case Conflict:
		return "conflict"
	}
	return "unknown"
}

// Classify compares a local and a remote profile. Either may be nil. Only
// emptiness is considered; field-level differences are ignored.
func Classify(local, remote *profile.Profile) Classification {
	if profile.IsEmpty(local) {
		return UseRemote
	}
	if profile.IsEmpty(remote) {
		return AdoptLocal
	}
	return Conflict
}
