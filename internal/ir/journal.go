package ir

// MutationRecord is one render-target mutation issued during a pass.
type MutationRecord struct {
	Op       string `json:"op"`
	TargetID string `json:"target_id"`
	Before   string `json:"before,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PassRecord is the journal entry of one engine pass.
//
// Seq comes from the engine's logical clock and is the only ordering key.
// Error is set when the pass was aborted by a configuration error; failed
// individual mutations carry their own Error and do not abort the pass.
type PassRecord struct {
	Token     string           `json:"token"`
	Seq       int64            `json:"seq"`
	Trigger   string           `json:"trigger"`
	Mutations []MutationRecord `json:"mutations,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Failed returns the mutations that failed.
func (p PassRecord) Failed() []MutationRecord {
	var out []MutationRecord
	for _, m := range p.Mutations {
		if m.Error != "" {
			out = append(out, m)
		}
	}
	return out
}
