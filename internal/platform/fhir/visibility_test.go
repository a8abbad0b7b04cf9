package fhir

import "testing"

func TestSharedWithPartner(t *testing.T) {
	cases := []struct {
		name string
		meta *Meta
		exts []Extension
		want bool
	}{
		{
			name: "shared-protocol tag",
			meta: &Meta{Tag: []Coding{{System: TagSystem, Code: TagSharedProtocol}}},
			want: true,
		},
		{
			name: "shared-batch tag",
			meta: &Meta{Tag: []Coding{{System: TagSystem, Code: TagSharedBatch}}},
			want: true,
		},
		{
			name: "legacy sharedWithCRO extension",
			exts: []Extension{{URL: ExtSharedWithCRO, ValueBoolean: BoolPtr(true)}},
			want: true,
		},
		{
			name: "legacy string extension",
			exts: []Extension{{URL: ExtSharedWithOrgs, ValueString: "true"}},
			want: true,
		},
		{
			name: "organization reference list",
			exts: []Extension{{
				URL: ExtSharedWithOrgs,
				Extension: []Extension{
					{URL: "organization", ValueReference: &Reference{Reference: "Organization/org-1"}},
				},
			}},
			want: true,
		},
		{
			name: "empty organization list",
			exts: []Extension{{URL: ExtSharedWithOrgs}},
			want: false,
		},
		{
			name: "tag from another system",
			meta: &Meta{Tag: []Coding{{System: "http://other.example", Code: TagSharedProtocol}}},
			want: false,
		},
		{
			name: "unshared",
			meta: &Meta{},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SharedWithPartner(tc.meta, tc.exts); got != tc.want {
				t.Fatalf("SharedWithPartner = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSharedWithSponsor(t *testing.T) {
	tagged := &Meta{Tag: []Coding{{System: TagSystem, Code: TagCROGeneratedResult}}}
	if !SharedWithSponsor(tagged, nil) {
		t.Fatal("cro-generated-result tag not recognised")
	}

	ext := []Extension{{URL: ExtSharedWithSponsor, ValueBoolean: BoolPtr(true)}}
	if !SharedWithSponsor(nil, ext) {
		t.Fatal("shared-with-sponsor extension not recognised")
	}

	if SharedWithSponsor(&Meta{}, nil) {
		t.Fatal("unshared result reported visible")
	}
}
