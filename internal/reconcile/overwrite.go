package reconcile

import (
	"context"

	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/profile"
)

// stepFields names the flat-field update step in sync errors.
const stepFields = "fields"

// Overwrite writes local into the remote profile owned by creds: first the
// flat fields, then each of the five collections as a full replacement, and
// finally reads the result back. Remote entries absent from local are lost.
// Local identifiers are never sent.
//
// The calls are not atomic as a whole. A failure on the first call is a
// *SyncError; a failure after at least one call succeeded is a
// *PartialSyncError.
func Overwrite(ctx context.Context, remote Remote, creds identity.Credentials, local profile.Profile) (profile.Profile, error) {
	if err := remote.UpdateFields(ctx, creds, local.Fields); err != nil {
		return profile.Profile{}, &SyncError{Step: stepFields, Err: err}
	}
	completed := []string{stepFields}

	for _, kind := range profile.Kinds() {
		src := local.Entries(kind)
		entries := make([]profile.Entry, len(src))
		for i, e := range src {
			entries[i] = profile.WithID(e, "")
		}
		if _, err := remote.ReplaceCollection(ctx, creds, kind, entries); err != nil {
			return profile.Profile{}, &PartialSyncError{
				Completed: completed,
				Failed:    string(kind),
				Err:       err,
			}
		}
		completed = append(completed, string(kind))
	}

	final, err := remote.GetProfile(ctx, creds)
	if err != nil {
		return profile.Profile{}, &SyncError{Step: "read_back", Err: err}
	}
	return final, nil
}
