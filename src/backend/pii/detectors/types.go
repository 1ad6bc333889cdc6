package pii

import "strings"

// EntityKind is the closed set of categories the anonymizer knows how to handle
type EntityKind string

const (
	KindPerson       EntityKind = "PERSON"
	KindOrganization EntityKind = "ORGANIZATION"
	KindLocation     EntityKind = "LOCATION"
	KindDate         EntityKind = "DATE"
	KindEmail        EntityKind = "EMAIL"
	KindIPv4         EntityKind = "IPV4"
	KindOther        EntityKind = "OTHER"
)

// AllKinds lists every EntityKind in a stable order
var AllKinds = []EntityKind{
	KindPerson, KindOrganization, KindLocation, KindDate, KindEmail, KindIPv4, KindOther,
}

// labelKinds maps recognizer labels onto entity kinds. Covers spaCy/OntoNotes
// labels, CoNLL short forms and the labels emitted by the token classification model.
var labelKinds = map[string]EntityKind{
	"PERSON":       KindPerson,
	"PER":          KindPerson,
	"NAME":         KindPerson,
	"FIRSTNAME":    KindPerson,
	"SURNAME":      KindPerson,
	"ORG":          KindOrganization,
	"ORGANIZATION": KindOrganization,
	"COMPANY":      KindOrganization,
	"COMPANYNAME":  KindOrganization,
	"GPE":          KindLocation,
	"LOC":          KindLocation,
	"LOCATION":     KindLocation,
	"CITY":         KindLocation,
	"DATE":         KindDate,
	"DATEOFBIRTH":  KindDate,
	"EMAIL":        KindEmail,
	"IPV4":         KindIPv4,
	"IP":           KindIPv4,
	"IPADDRESS":    KindIPv4,
	"IP_ADDRESS":   KindIPv4,
}

// ParseEntityKind normalizes a raw recognizer label. BIO prefixes are stripped
// and matching is case-insensitive; anything unrecognized is KindOther.
func ParseEntityKind(label string) EntityKind {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	normalized = strings.TrimPrefix(normalized, "B-")
	normalized = strings.TrimPrefix(normalized, "I-")

	if kind, ok := labelKinds[normalized]; ok {
		return kind
	}
	return KindOther
}

// DetectorInput represents the input for PII detection
type DetectorInput struct {
	Text string `json:"text"`
}

// DetectorOutput represents the output of PII detection
type DetectorOutput struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity represents a detected PII span. Detectors produce it fresh per
// document; consumers treat it as read-only.
type Entity struct {
	Text       string     `json:"text"`
	Label      EntityKind `json:"label"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
	Confidence float64    `json:"confidence"`
}
