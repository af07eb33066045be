package rewrite

import "fmt"

// Input bounds applied before prompt construction. Oversized input is
// truncated at a rune boundary rather than rejected, so the engine never
// fails on long queries.
const (
	maxPromptQueryRunes   = 8192
	maxPromptProfileRunes = 4096
)

// systemPrompt frames the generation collaborator's role.
const systemPrompt = "You are a helpful query rewriting assistant."

// DefaultRewriteInstructions is the default requirements block of the
// rewrite prompt. Config.CustomInstructions replaces it when set.
const DefaultRewriteInstructions = `Resolve vague references using only facts stated in the user information:
- place references such as "here", "there", "nearby"
- time references such as "recently", "last month"
- work references such as "my project", "my job"
Preserve the original intent, scope, and requested action of the query.
Never add facts that are not present in the user information.
If the query is already clear and unambiguous, return it unchanged.`

// rewritePromptTemplate lays out the grounding request: user information,
// requirements, then the query to rewrite.
const rewritePromptTemplate = `# Task
Rewrite the query by clarifying any ambiguous or underspecified references based on the provided user information, making the query more precise.

# User Information
%s

# Requirements
%s

# Output
Output only the rewritten query, without any explanation.

# Query
%s`

// buildRewritePrompt assembles the grounding prompt from profile content
// and the query, truncating both to their rune bounds.
func buildRewritePrompt(profileContent, query, customInstructions string) string {
	instructions := customInstructions
	if instructions == "" {
		instructions = DefaultRewriteInstructions
	}

	profileContent = truncateRunes(profileContent, maxPromptProfileRunes)
	query = truncateRunes(query, maxPromptQueryRunes)

	return fmt.Sprintf(rewritePromptTemplate, profileContent, instructions, query)
}

// truncateRunes limits s to at most n runes, never splitting a codepoint.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
