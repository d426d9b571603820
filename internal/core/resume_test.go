package core

import "testing"

func TestParseRefPrefixes(t *testing.T) {
	cases := []struct {
		in   string
		want Ref
	}{
		{"hh_123", Ref{Provider: ProviderHH, ID: "123"}},
		{"avito_456", Ref{Provider: ProviderAvito, ID: "456"}},
		// legacy ids without a prefix belong to hh
		{"789", Ref{Provider: ProviderHH, ID: "789"}},
	}

	for _, c := range cases {
		got := ParseRef(c.in)
		if got != c.want {
			t.Fatalf("ParseRef(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestRefStringRoundTrip(t *testing.T) {
	ref := Ref{Provider: ProviderAvito, ID: "42"}
	if got := ParseRef(ref.String()); got != ref {
		t.Fatalf("round trip gave %+v, want %+v", got, ref)
	}
}

func TestFullNameSkipsEmptyParts(t *testing.T) {
	r := &Resume{FirstName: "Ivan", LastName: "Petrov"}
	if got := r.FullName(); got != "Ivan Petrov" {
		t.Fatalf("unexpected full name: %q", got)
	}
}

func TestExperienceTextJoinsDescriptions(t *testing.T) {
	r := &Resume{Experience: []ExperienceEntry{
		{Company: "Acme", Description: "built services"},
		{Company: "Globex", Description: "  "},
		{Company: "Initech", Description: "ran kitchens"},
	}}

	want := "built services\nran kitchens"
	if got := r.ExperienceText(); got != want {
		t.Fatalf("ExperienceText() = %q, want %q", got, want)
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	for status, terminal := range map[TaskStatus]bool{
		TaskCreated:    false,
		TaskInProgress: false,
		TaskCompleted:  true,
		TaskFailed:     true,
	} {
		if status.Terminal() != terminal {
			t.Fatalf("status %q: Terminal() = %v, want %v", status, status.Terminal(), terminal)
		}
	}
}
