package fhir

// SharedWithPartner reports whether a resource has been shared into the
// partner's view: either a shared-* meta tag or one of the legacy boolean
// share extensions. Partner-side read views filter on this; direct fetches
// of resources that fail it are rejected.
func SharedWithPartner(meta *Meta, exts []Extension) bool {
	for _, code := range []string{TagSharedProtocol, TagSharedTest, TagSharedBatch} {
		if HasTag(meta, TagSystem, code) {
			return true
		}
	}
	if ExtensionBool(exts,
		ExtSharedWithCRO, ExtSharedWithCROLegacy, ExtSharedWithOrgs, ExtSharedWithSponsor) {
		return true
	}
	// shared-with-organizations is also written as a list of organization
	// reference sub-extensions; a non-empty list counts as shared.
	if ext, ok := FindExtension(exts, ExtSharedWithOrgs); ok && len(ext.Extension) > 0 {
		return true
	}
	return false
}

// SharedWithSponsor is the result-specific predicate: a CRO result becomes
// visible to the sponsor once it is tagged cro-generated-result or carries
// shared-with-sponsor=true.
func SharedWithSponsor(meta *Meta, exts []Extension) bool {
	if HasTag(meta, TagSystem, TagCROGeneratedResult) {
		return true
	}
	return ExtensionBool(exts, ExtSharedWithSponsor)
}
