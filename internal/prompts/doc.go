// Package prompts contains the LLM prompt templates used by onboard.
//
// Prompt text is Go code rather than config files: templates use
// fmt.Sprintf interpolation and are checked by tests. Each prompt gets
// an exported function that accepts the dynamic parts and returns the
// fully interpolated string.
package prompts
