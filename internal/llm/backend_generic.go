package llm

// genericBackend targets any OpenAI-compatible endpoint configured as
// the fallback default (spec §4.5 "else -> configured default"). The
// wire shape is identical to OpenAI's, so it reuses openAIBackend with
// a separate credential set.
func newGenericBackend(apiKey, baseURL string) backend {
	return newOpenAIBackend(apiKey, baseURL)
}
