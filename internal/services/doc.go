// Package services implements the clients that talk to external systems.
//
// # Strategy generation
//
// [StrategyGenerator] turns a [models.UserIntent] into a [models.Strategy]. It builds a
// deterministic prompt ([BuildSystemPrompt], [BuildUserPrompt]), sends it through a
// [Completer] and validates the reply with [models.ParseStrategy]. Malformed replies are
// retried in a bounded loop with a linear backoff; once the attempts are spent the last
// error is returned inside a [shared.StrategyGenerationError].
//
// Two completers exist:
//   - [OpenAICompleter]: chat completions with response_format json_object
//   - [OllamaCompleter]: a local Ollama server with format "json"
//
// # Catalog
//
// [SpotifyCatalog] searches Spotify for tracks using the client-credentials grant.
// Tokens are cached until 30 seconds before expiry and concurrent callers share a single
// exchange. Searches are rate limited and each one carries its own timeout.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.StrategyGenerationError] : every generation attempt failed
//   - [shared.CatalogAuthError] : the catalog rejected the client credentials
//   - [shared.CatalogRequestError] : one search failed in transport or with a non-2xx status
//   - [shared.ErrInvalidCredentials] : the generation backend rejected the API key
//
// Credentials are held as [shared.Secret] and never appear in logs or error text.
package services
