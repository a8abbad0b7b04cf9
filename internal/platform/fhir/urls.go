package fhir

// Extension URLs, tag systems and identifier systems used by the stability
// collaboration network. Partner servers recognise both the current URLs and
// the legacy ones still present on older resources; decoders try them in the
// order the Legacy* slices list them.
const (
	ExtBase = "http://example.org/fhir/StructureDefinition/"

	ExtSponsor             = ExtBase + "sponsor"
	ExtSponsorID           = ExtBase + "sponsor-id"
	ExtSharedDate          = ExtBase + "sharedDate"
	ExtSharedWithCRO       = ExtBase + "sharedWithCRO"
	ExtSharedWithCROLegacy = ExtBase + "shared-with-cro"
	ExtSharedWithOrgs      = ExtBase + "shared-with-organizations"
	ExtSharedWithSponsor   = ExtBase + "shared-with-sponsor"

	ExtPlanSharedOrganizations = ExtBase + "plan-definition-shared-organizations"
	ExtPlanPartialShare        = ExtBase + "plan-definition-partial-share"

	ExtTestDefinitions        = ExtBase + "stability-test-definitions"
	ExtTestProtocol           = ExtBase + "stability-test-protocol"
	ExtTestProtocolLegacy     = ExtBase + "test-protocol-reference"
	ExtTestType               = ExtBase + "stability-test-type"
	ExtTestSubtype            = ExtBase + "stability-test-subtype"
	ExtTestParameters         = ExtBase + "stability-test-parameters"
	ExtTestAcceptanceCriteria = ExtBase + "stability-test-acceptance-criteria"
	ExtTestCondition          = ExtBase + "test-condition"

	ExtBatchProtocol    = ExtBase + "batch-protocol"
	ExtManufactureDate  = ExtBase + "manufactureDate"
	ExtQuantity         = ExtBase + "quantity"
	ExtMedicinalProduct = ExtBase + "medicinal-product"

	ExtTestDefinition        = ExtBase + "test-definition"
	ExtProtocolTimepoint     = ExtBase + "protocol-timepoint"
	ExtProtocolTimepointName = ExtBase + "protocol-timepoint-title"
	ExtParameterResults      = ExtBase + "parameter-results"
	ExtCriteriaResults       = ExtBase + "criteria-results"
	ExtResultDetails         = ExtBase + "result-details"
	ExtResultOrganization    = ExtBase + "result-organization"
	ExtResultUnit            = ExtBase + "result-unit"
	ExtResultSource          = ExtBase + "result-source"

	ExtOrganizationAPIKey  = ExtBase + "organization-api-key"
	ExtOrganizationType    = ExtBase + "organization-type"
	ExtSponsorOrganization = ExtBase + "sponsor-organization"
	ExtCRO                 = ExtBase + "cro"

	TagSystem              = "http://example.org/fhir/tags"
	TagSharedProtocol      = "shared-protocol"
	TagSharedTest          = "shared-test"
	TagSharedBatch         = "shared-batch"
	TagSponsorOrganization = "sponsor-organization"
	TagCROGeneratedResult  = "cro-generated-result"
	TagCROProvidedResult   = "cro-provided-result"

	IdentProtocol      = "http://example.org/fhir/identifier/protocol"
	IdentBatch         = "http://example.org/batch-identifiers"
	IdentSponsor       = "http://example.org/fhir/sponsor-id"
	IdentTestProtocols = "http://example.org/stability/protocols"
)
