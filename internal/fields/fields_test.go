package fields

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOnboarding_Order(t *testing.T) {
	want := []string{Name, Role, ExperienceLevel, Location, StartupStage, ExtraPreferences}
	if diff := cmp.Diff(want, Onboarding().Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, Onboarding().Required()); diff != "" {
		t.Errorf("Required() mismatch (-want +got):\n%s", diff)
	}
}

func TestOnboarding_FirstQuestion(t *testing.T) {
	if got := Onboarding().FirstQuestion(); got != "Hey, what do we call you?" {
		t.Errorf("FirstQuestion() = %q", got)
	}
}

func TestOnboarding_Shared(t *testing.T) {
	if Onboarding() != Onboarding() {
		t.Error("Onboarding() built more than once")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
		want  string
	}{
		{"empty name", []Spec{{Name: ""}}, "has no name"},
		{"duplicate", []Spec{{Name: "a"}, {Name: "a"}}, `duplicate field "a"`},
		{"two first questions", []Spec{{Name: "a", FirstQuestion: "x?"}, {Name: "b", FirstQuestion: "y?"}}, "first question already set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSchema_Lookup(t *testing.T) {
	s := Onboarding()
	spec, ok := s.Lookup(StartupStage)
	if !ok {
		t.Fatal("startup_stage not found")
	}
	if diff := cmp.Diff([]string{"Early", "Growth", "Late", "Unicorn"}, spec.OptionValues()); diff != "" {
		t.Errorf("OptionValues() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Lookup("salary"); ok {
		t.Error("Lookup(salary) should miss")
	}
	if s.Has("salary") || !s.Has(Location) {
		t.Error("Has() disagrees with Lookup()")
	}
}

func TestSchema_SpecsIsCopy(t *testing.T) {
	s := Onboarding()
	specs := s.Specs()
	specs[0].Name = "mutated"
	if s.Names()[0] != Name {
		t.Error("Specs() exposed internal slice")
	}
}

func TestSchema_MissingAndCollected(t *testing.T) {
	s := Onboarding()
	values := map[string]string{
		Name:     "Sarah",
		Role:     "Backend Developer",
		Location: "  ",
		"salary": "lots",
	}

	wantMissing := []string{ExperienceLevel, Location, StartupStage, ExtraPreferences}
	if diff := cmp.Diff(wantMissing, s.Missing(values)); diff != "" {
		t.Errorf("Missing() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantMissing, s.MissingRequired(values)); diff != "" {
		t.Errorf("MissingRequired() mismatch (-want +got):\n%s", diff)
	}

	wantCollected := map[string]string{Name: "Sarah", Role: "Backend Developer"}
	if diff := cmp.Diff(wantCollected, s.Collected(values)); diff != "" {
		t.Errorf("Collected() mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_MissingRequiredSkipsOptional(t *testing.T) {
	s := MustNew(
		Spec{Name: "a", Required: true},
		Spec{Name: "b"},
	)
	if diff := cmp.Diff([]string{"a", "b"}, s.Missing(nil)); diff != "" {
		t.Errorf("Missing(nil) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, s.MissingRequired(nil)); diff != "" {
		t.Errorf("MissingRequired(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_Describe(t *testing.T) {
	s := MustNew(
		Spec{Name: "name", Required: true, Description: "Full name", Examples: []string{"Ann", "Bo"}},
		Spec{Name: "stage", Description: "Stage", Options: []Option{{"Early", "small"}, {"Late", "big"}}},
		Spec{Name: "level", Required: true, Description: "Level", NormalizeTo: []string{"Junior", "Senior"}},
	)
	want := "- name (Required): Full name\n" +
		"  Examples: Ann, Bo\n" +
		"- stage (Optional): Stage\n" +
		"  Options: Early, Late\n" +
		"- level (Required): Level\n" +
		"  Normalize to: Junior, Senior"
	if diff := cmp.Diff(want, s.Describe()); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestSchema_DescribeListsEveryFieldOnceInOrder(t *testing.T) {
	s := Onboarding()
	out := s.Describe()
	if out != s.Describe() {
		t.Fatal("Describe() is not deterministic")
	}

	last := -1
	for _, name := range s.Names() {
		header := "- " + name + " ("
		if n := strings.Count(out, header); n != 1 {
			t.Errorf("field %q rendered %d times", name, n)
		}
		pos := strings.Index(out, header)
		if pos < last {
			t.Errorf("field %q rendered out of order", name)
		}
		last = pos
	}
}
