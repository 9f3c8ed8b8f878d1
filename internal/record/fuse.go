package record

// Fuse merges other into r. Origins are unioned preserving r's order first,
// hash_ids become the sorted union, and fields are combined keeping the
// best-known value: non-empty wins over empty, curated metadata wins over
// non-curated, and the longer abstract wins. Provenance records the
// originating source of every value taken from other. r's status is left
// untouched; the caller transitions it through the state machine.
func (r *Record) Fuse(other *Record) {
	for _, o := range other.Origins {
		r.AddOrigin(o)
	}
	for _, h := range other.HashIDs {
		r.AddHashID(h)
	}

	otherCurated := other.MasterdataCurated()
	rCurated := r.MasterdataCurated()

	for key, otherVal := range other.Fields {
		if otherVal == "" {
			continue
		}
		current := r.Fields[key]
		if !r.preferIncoming(key, current, otherVal, rCurated, otherCurated) {
			continue
		}
		r.Fields[key] = otherVal
		if prov, ok := other.MdProv[key]; ok {
			r.MdProv[key] = prov
		} else if prov, ok := other.DProv[key]; ok {
			r.DProv[key] = prov
		} else {
			r.MdProv[key] = Provenance{Source: other.ID, Note: "merged"}
		}
	}

	if otherCurated && !rCurated {
		r.MdProv[CuratedMarker] = other.MdProv[CuratedMarker]
	}

	if r.File == "" {
		r.File = other.File
	}
	if r.ScreeningCriteria == "" {
		r.ScreeningCriteria = other.ScreeningCriteria
	}
	if r.EntryType == "" {
		r.EntryType = other.EntryType
	}
}

// preferIncoming decides whether the incoming value replaces the current one.
func (r *Record) preferIncoming(key, current, incoming string, rCurated, otherCurated bool) bool {
	if current == "" {
		return true
	}
	// Curated beats non-curated for masterdata fields.
	if isMasterdata(key) && otherCurated && !rCurated {
		return true
	}
	if isMasterdata(key) && rCurated && !otherCurated {
		return false
	}
	// Longer abstract wins; applies when both sides have equal curation.
	if key == "abstract" && len(incoming) > len(current) {
		return true
	}
	return false
}
