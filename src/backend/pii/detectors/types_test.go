package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEntityKind(t *testing.T) {
	tests := []struct {
		label string
		want  EntityKind
	}{
		{"PERSON", KindPerson},
		{"person", KindPerson},
		{" PER ", KindPerson},
		{"B-FIRSTNAME", KindPerson},
		{"I-SURNAME", KindPerson},
		{"ORG", KindOrganization},
		{"COMPANYNAME", KindOrganization},
		{"GPE", KindLocation},
		{"LOC", KindLocation},
		{"B-CITY", KindLocation},
		{"DATE", KindDate},
		{"DATEOFBIRTH", KindDate},
		{"EMAIL", KindEmail},
		{"IPV4", KindIPv4},
		{"MONEY", KindOther},
		{"", KindOther},
		{"O", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEntityKind(tt.label))
		})
	}
}

func TestAllKinds_Distinct(t *testing.T) {
	seen := make(map[EntityKind]bool)
	for _, kind := range AllKinds {
		assert.False(t, seen[kind], "duplicate kind %s", kind)
		seen[kind] = true
	}
	assert.Len(t, seen, 7)
}
