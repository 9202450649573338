package agent

const defaultSystemPrompt = `You are an assistant working with a curated knowledge base.

When the question asks for facts (dates, times, prices, schedules, names),
answer strictly from the knowledge-base context provided below. If the
context does not contain the answer, say that the knowledge base has no
information on the subject instead of guessing.

For general questions you may answer from your own knowledge, clearly and
to the point, without filler introductions.`

// SystemPrompt builds the system instruction for one chat turn. base
// overrides the default persona when non-empty; ragContext, when
// present, is appended as the grounding block.
func SystemPrompt(base, ragContext string) string {
	if base == "" {
		base = defaultSystemPrompt
	}
	if ragContext != "" {
		base += "\n\n" + ragContext + "\nUse this information when it is relevant to the question."
	}
	return base
}
