// Package rehash upgrades every record fingerprint to a new function version.
package rehash

import (
	"fmt"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
	"github.com/livrev/livrev/internal/fingerprint"
)

// Report summarizes one rehash campaign.
type Report struct {
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
	Records    int    `json:"records"`
}

// Run recomputes the fingerprint of every record from its stored metadata
// under the new version and persists the updated settings. During the rewrite
// the superseded digests carry the old_hash_ prefix so a recomputed digest
// can never collide with a stale one; afterwards no record retains a prefixed
// entry. Two records minting the same new digest is a fatal integrity error.
func Run(root string, settings *config.Settings, newVersion string) (*Report, error) {
	oldVersion := settings.Project.HashVersion
	if newVersion == oldVersion {
		return nil, fmt.Errorf("rehash: project already uses fingerprint version %s", newVersion)
	}
	fn, err := fingerprint.Lookup(newVersion)
	if err != nil {
		return nil, err
	}

	store := dataset.Open(root)
	records, err := store.LoadRecords(false)
	if err != nil {
		return nil, err
	}

	// Retire every current digest before minting new ones. The retired set
	// carries the old_hash_ prefix and is checked during minting: a fresh
	// digest matching another record's retired digest would silently fuse
	// their fingerprint histories.
	retired := make(map[string]string)
	for _, rec := range records {
		marked := make([]string, 0, len(rec.HashIDs))
		for _, h := range rec.HashIDs {
			m := fingerprint.MarkOld(h)
			marked = append(marked, m)
			retired[m] = rec.ID
		}
		rec.HashIDs = nil
		for _, h := range marked {
			rec.AddHashID(h)
		}
	}

	minted := make(map[string]string, len(records))
	for _, rec := range records {
		fresh := fn.Compute(rec.Raw())
		if other, taken := minted[fresh]; taken {
			return nil, fmt.Errorf("rehash: records %s and %s collide under version %s",
				other, rec.ID, newVersion)
		}
		if owner, taken := retired[fingerprint.MarkOld(fresh)]; taken && owner != rec.ID {
			return nil, fmt.Errorf("rehash: fresh digest of %s collides with a retired digest of %s",
				rec.ID, owner)
		}
		minted[fresh] = rec.ID
		rec.HashIDs = nil
		rec.AddHashID(fresh)
	}

	if err := store.SaveRecords(records); err != nil {
		return nil, err
	}
	settings.Project.HashVersion = newVersion
	if err := settings.Save(root); err != nil {
		return nil, err
	}
	return &Report{OldVersion: oldVersion, NewVersion: newVersion, Records: len(records)}, nil
}
