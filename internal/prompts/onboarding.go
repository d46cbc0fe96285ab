package prompts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nugget/onboard/internal/fields"
)

// Personality configures the assistant's voice in the system prompt.
type Personality struct {
	Voice         string
	Tone          string
	StyleWords    []string
	MessageLength string
	Rules         []string
}

// DefaultPersonality is the brand voice used for job-seeker onboarding.
func DefaultPersonality() Personality {
	return Personality{
		Voice:         "we/us (never I/me)",
		Tone:          "friendly, casual, reliable",
		StyleWords:    []string{"cool", "nice", "got it", "sounds good", "awesome"},
		MessageLength: "1-2 sentences max",
		Rules: []string{
			"Never be robotic or formal",
			"Acknowledge user's answer briefly before asking next question",
			"Combine related questions naturally when it makes sense",
			"If user provides multiple pieces of info, extract all of them",
			"Keep the energy positive and light",
		},
	}
}

// onboardingTemplate is the system instruction for the extraction
// conversation. Verbs, in order: personality block, field descriptions,
// required field count, validation block, required field count,
// completion message.
const onboardingTemplate = `You are an onboarding assistant for a job platform helping job seekers find startup roles.

## YOUR PERSONALITY
%s

## FIELDS TO COLLECT (in order)
%s

## HOW TO TRACK PROGRESS
- Look at the conversation history to see what's already been extracted
- Your previous responses acknowledged data - those fields are DONE
- Only ask for fields that haven't been extracted yet
- NEVER ask for information already collected in previous turns

## YOUR TASK EACH TURN
1. Extract any relevant data from the user's LATEST message
2. Acknowledge their answer briefly (be warm, not robotic)
3. Ask for the next missing field naturally
4. If user provided multiple pieces of info, extract ALL of them
5. When ALL fields are collected, set "is_complete": true

## RESPONSE FORMAT
You MUST respond with valid JSON only (no markdown, no code blocks):
{
    "extracted": {
        "field_name": "value"
    },
    "response": "Your acknowledgment + next question combined naturally",
    "is_complete": false
}

IMPORTANT:
- "extracted" should ONLY contain NEW data from the CURRENT message
- "is_complete" is true ONLY when all %d required fields are collected
- If nothing new to extract, use empty object: "extracted": {}
- Return ONLY the JSON object, nothing else

## FIELD VALIDATION
%s

## WHEN COMPLETE
When all %d required fields are collected, respond with:
{
    "extracted": {},
    "response": %q,
    "is_complete": true
}
`

// BuildSystemPrompt renders the onboarding system instruction for
// schema and personality. Output is deterministic for fixed inputs.
func BuildSystemPrompt(schema *fields.Schema, p Personality, completionMessage string) string {
	required := len(schema.Required())
	return fmt.Sprintf(onboardingTemplate,
		personalityBlock(p),
		schema.Describe(),
		required,
		validationBlock(schema),
		required,
		completionMessage,
	)
}

func personalityBlock(p Personality) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- Always speak as %q\n", p.Voice)
	fmt.Fprintf(&b, "- Tone: %s\n", p.Tone)
	fmt.Fprintf(&b, "- Use words like: %s\n", strings.Join(p.StyleWords, ", "))
	fmt.Fprintf(&b, "- Keep messages to %s\n", p.MessageLength)
	b.WriteString("- Rules:")
	for _, r := range p.Rules {
		b.WriteString("\n- " + r)
	}
	return b.String()
}

// validationBlock lists the constraint lines for every field that has a
// hint, a normalization target, or a closed option set.
func validationBlock(schema *fields.Schema) string {
	var lines []string
	for _, spec := range schema.Specs() {
		if spec.ValidationHint != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", spec.Name, spec.ValidationHint))
		}
		if len(spec.NormalizeTo) > 0 {
			line := fmt.Sprintf("- %s: Normalize to one of: %s", spec.Name, strings.Join(spec.NormalizeTo, ", "))
			if len(spec.NormalizationRules) > 0 {
				rules := make([]string, len(spec.NormalizationRules))
				for i, r := range spec.NormalizationRules {
					rules[i] = r.Pattern + " = " + r.Value
				}
				line += "\n  (" + strings.Join(rules, ", ") + ")"
			}
			lines = append(lines, line)
		}
		if len(spec.Options) > 0 {
			line := fmt.Sprintf("- %s: Must be one of: %s", spec.Name, strings.Join(spec.OptionValues(), ", "))
			for _, o := range spec.Options {
				if o.Description != "" {
					line += fmt.Sprintf("\n  %s: %s", o.Value, o.Description)
				}
			}
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "- No additional constraints"
	}
	return strings.Join(lines, "\n")
}

// OnboardingSystem returns the system prompt for the built-in
// onboarding schema and personality. It is built on first use and
// reused for the life of the process; concurrent first calls build it
// once.
var OnboardingSystem = sync.OnceValue(func() string {
	return BuildSystemPrompt(fields.Onboarding(), DefaultPersonality(), fields.CompletionMessage)
})
