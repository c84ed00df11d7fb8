// Package reference holds the static documentation exposed to the assistant
// as MCP resources. The content is purely informational; nothing here talks
// to the FHIR server.
package reference

import "sort"

// docs maps topic names to their markdown content.
var docs = map[string]string{
	"interactions":   interactionsDoc,
	"search":         searchDoc,
	"authentication": authenticationDoc,
	"resource-types": resourceTypesDoc,
}

// Topics returns the available documentation topics in stable order.
func Topics() []string {
	topics := make([]string, 0, len(docs))
	for topic := range docs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Get returns the documentation for a topic.
func Get(topic string) (string, bool) {
	doc, ok := docs[topic]
	return doc, ok
}

const interactionsDoc = `# FHIR REST interactions

The server exposes the standard FHIR RESTful interactions as tools:

| Tool | Interaction | HTTP |
|---|---|---|
| read_resource | read | GET [base]/[type]/[id] |
| search_resources | search-type | GET [base]/[type]?params |
| create_resource | create | POST [base]/[type] |
| update_resource | update | PUT [base]/[type]/[id] |
| delete_resource | delete | DELETE [base]/[type]/[id] |
| get_capabilities | capabilities | GET [base]/metadata |

Request and response bodies use application/fhir+json. Errors carry the
diagnostics of the server's OperationOutcome when one is returned.
`

const searchDoc = `# FHIR search parameters

Search parameters are passed as a JSON object of name/value pairs, e.g.:

    {"patient": "Patient/123", "date": "ge2024-01-01", "_count": "20"}

Common parameters:

- _id: logical id of the resource
- _count: page size for the result bundle
- _sort: sort order, prefix with - for descending (e.g. -date)
- _include: include referenced resources in the bundle

Prefixes for date and quantity parameters: eq, ne, gt, lt, ge, le, sa, eb.
Token parameters accept system|code values, e.g. http://loinc.org|8480-6.
The result is a Bundle of type searchset; entry.resource holds the matches.
`

const authenticationDoc = `# Authentication modes

The adapter supports three modes, switchable at runtime via configure_auth:

- none: no credentials are attached.
- bearer: a static token is sent as Authorization: Bearer <token>.
- oauth2-client-credentials: an access token is obtained from the OAuth
  token endpoint with the client-credentials grant and cached until shortly
  before it expires. The token endpoint can be set manually (tokenUrl) or
  discovered from the FHIR server's well-known smart-configuration document
  (discover_oauth).

Diagnostics: test_auth performs a dry-run credential check, get_token_status
reports the cache state, refresh_token forces a new token.
`

const resourceTypesDoc = `# Common FHIR R4 resource types

Administrative: Patient, Practitioner, PractitionerRole, Organization,
Location, Encounter, EpisodeOfCare, Appointment, Schedule, Slot.

Clinical: Condition, Observation, Procedure, DiagnosticReport,
AllergyIntolerance, Immunization, CarePlan, CareTeam, Goal,
ClinicalImpression, FamilyMemberHistory.

Medications: Medication, MedicationRequest, MedicationDispense,
MedicationAdministration, MedicationStatement.

Documents and workflow: DocumentReference, Composition, Task,
ServiceRequest, Communication, Questionnaire, QuestionnaireResponse.

Financial: Coverage, Claim, ClaimResponse, ExplanationOfBenefit, Invoice.
`
