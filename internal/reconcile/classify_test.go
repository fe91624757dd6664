package reconcile

import (
	"testing"

	"github.com/kalambet/profilestack/internal/profile"
)

func TestClassify(t *testing.T) {
	empty := &profile.Profile{Fields: profile.Fields{FirstName: "Jane", Email: "jane@example.com"}}
	withBio := &profile.Profile{Fields: profile.Fields{Bio: "Engineer"}}
	withSkill := &profile.Profile{Skills: []profile.Skill{{ID: "s1", Name: "Go"}}}

	tests := []struct {
		name   string
		local  *profile.Profile
		remote *profile.Profile
		want   Classification
	}{
		{"no local, no remote", nil, nil, UseRemote},
		{"no local, remote data", nil, withSkill, UseRemote},
		{"empty local, empty remote", empty, empty, UseRemote},
		{"local data, no remote", withBio, nil, AdoptLocal},
		{"local data, empty remote", withBio, empty, AdoptLocal},
		{"local data, remote data", withBio, withSkill, Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 2; i++ {
				if got := Classify(tt.local, tt.remote); got != tt.want {
					t.Errorf("Classify = %s, want %s", got, tt.want)
				}
			}
		})
	}
}

func TestClassify_EachKindCountsAsData(t *testing.T) {
	remote := &profile.Profile{Fields: profile.Fields{Bio: "remote"}}
	locals := map[profile.Kind]*profile.Profile{
		profile.KindEducation:     {Education: []profile.Education{{Institution: "MIT", Degree: "BSc"}}},
		profile.KindExperience:    {Experience: []profile.Experience{{Company: "Acme", Position: "Dev"}}},
		profile.KindSkill:         {Skills: []profile.Skill{{Name: "Go"}}},
		profile.KindProject:       {Projects: []profile.Project{{Title: "cli"}}},
		profile.KindCertification: {Certifications: []profile.Certification{{Name: "CKA", IssuingOrg: "CNCF"}}},
	}
	for kind, local := range locals {
		if got := Classify(local, remote); got != Conflict {
			t.Errorf("%s: Classify(local, remote) = %s, want conflict", kind, got)
		}
		if got := Classify(local, nil); got != AdoptLocal {
			t.Errorf("%s: Classify(local, nil) = %s, want adopt_local", kind, got)
		}
	}
}

func TestClassification_String(t *testing.T) {
	tests := map[Classification]string{
		UseRemote:         "use_remote",
		AdoptLocal:        "adopt_local",
		Conflict:          "conflict",
		Classification(0): "unknown",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
