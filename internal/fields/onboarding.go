package fields

import "sync"

// Completion copy shown when every field has been collected.
const (
	CompletionMessage   = "Cool, let us pull up the best startup roles for you. We'll start sending them to you!"
	CompletionAnimation = "pspspspsps… pulling jobs…"
)

// Field names of the job-seeker onboarding schema.
const (
	Name             = "name"
	Role             = "role"
	ExperienceLevel  = "experience_level"
	Location         = "location"
	StartupStage     = "startup_stage"
	ExtraPreferences = "extra_preferences"
)

// Onboarding returns the job-seeker onboarding schema. The schema is
// built once and shared.
var Onboarding = sync.OnceValue(func() *Schema {
	return MustNew(
		Spec{
			Name:           Name,
			Required:       true,
			Description:    "User's full name",
			ValidationHint: "Must be a real name, not gibberish or numbers",
			Examples:       []string{"Rahul", "Sarah Chen", "John Doe"},
			FirstQuestion:  "Hey, what do we call you?",
		},
		Spec{
			Name:        Role,
			Required:    true,
			Description: "Target job role(s) the user is looking for",
			Examples:    []string{"Software Engineer", "Backend Developer", "Product Manager", "UX Designer", "Data Scientist"},
		},
		Spec{
			Name:        ExperienceLevel,
			Required:    true,
			Description: "Years of experience or seniority level",
			NormalizeTo: []string{"Entry-level", "Junior", "Mid-level", "Senior", "Lead"},
			NormalizationRules: []Rule{
				{"0-1 years", "Entry-level"},
				{"1-2 years", "Junior"},
				{"3-5 years", "Mid-level"},
				{"5-8 years", "Senior"},
				{"8+ years", "Lead"},
			},
		},
		Spec{
			Name:        Location,
			Required:    true,
			Description: "Where the user wants to work (city, state, or remote)",
			Examples:    []string{"San Francisco", "New York", "Remote", "Bangalore", "London"},
		},
		Spec{
			Name:        StartupStage,
			Required:    true,
			Description: "Preferred stage of startup",
			Options: []Option{
				{"Early", "Pre-seed to Series A, small team, high risk/reward"},
				{"Growth", "Series B-C, scaling fast, established product"},
				{"Late", "Series D+, more stable, larger teams"},
				{"Unicorn", "1B+ valuation, well-established"},
			},
		},
		Spec{
			Name:        ExtraPreferences,
			Required:    true,
			Description: "Any additional preferences like industry, benefits, company culture, specific companies",
		},
	)
})
