package model

// Capability is one of the two authorization tiers a user can hold on a note.
type Capability uint8

const (
	CapabilityOwner Capability = 1 << iota
	CapabilityCollaborator
)

// CapabilitySet is derived from the current note and collaboration rows on every check.
// It must not be cached across requests.
type CapabilitySet uint8

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

// CanAccess reports whether the set allows reading or updating note content.
func (s CapabilitySet) CanAccess() bool {
	return s.Has(CapabilityOwner) || s.Has(CapabilityCollaborator)
}

// CanManage reports whether the set allows deleting the note or managing its collaborators.
func (s CapabilitySet) CanManage() bool {
	return s.Has(CapabilityOwner)
}

func (s CapabilitySet) Strings() []string {
	out := make([]string, 0, 2)
	if s.Has(CapabilityOwner) {
		out = append(out, "owner")
	}
	if s.Has(CapabilityCollaborator) {
		out = append(out, "collaborator")
	}
	return out
}
