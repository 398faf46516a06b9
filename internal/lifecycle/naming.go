package lifecycle

import "strings"

// The relation between an index, its snapshot and its searchable mount is a
// naming convention only; these derivations are the single source of it.

// SearchableName returns the name of the searchable mount of index.
func (c Config) SearchableName(index string) string {
	return index + c.SearchableSuffix
}

// IsSearchableName reports whether name follows the searchable mount convention.
func (c Config) IsSearchableName(name string) bool {
	return strings.HasSuffix(name, c.SearchableSuffix)
}

// CorrespondingSnapshotName returns the snapshot backing name. A regular index's
// snapshot shares its name.
func (c Config) CorrespondingSnapshotName(name string) string {
	return strings.TrimSuffix(name, c.SearchableSuffix)
}

// ShouldManageIndex is the static eligibility filter: names ending in the write
// alias suffix are never managed, otherwise the name must start with a managed pattern.
// It does not look at live write-alias state; callers check IsWriteIndex separately.
func (c Config) ShouldManageIndex(name string) bool {
	if strings.HasSuffix(name, c.WriteAliasSuffix) {
		return false
	}
	for _, p := range c.ManagedIndexPatterns {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
