package models

// EnvelopeVersion is the schema version written into new envelopes.
const EnvelopeVersion = "1"

// Envelope is the self-describing metadata block embedded into a document's
// keyword metadata field (sentinel-prefixed, base64-encoded JSON). It carries
// every derived layer so a burned document is portable on its own.
type Envelope struct {
	LectoriumV   string               `json:"lectorium_v"`
	LastSync     string               `json:"last_sync"` // ISO 8601
	PageCount    int                  `json:"pageCount"`
	PageOffset   int                  `json:"pageOffset"`
	Annotations  []Annotation         `json:"annotations"`
	SemanticData map[int]SemanticPage `json:"semanticData,omitempty"`
}
