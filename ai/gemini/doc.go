// Package gemini provides an ai.AIProvider backed by Google Gemini embedding
// models through the generative-ai-go client.
//
//	provider, err := gemini.NewProvider(ctx, ai.NewConfig(
//	    ai.WithProvider(ai.ProviderGemini),
//	    ai.WithEmbeddingModel("gemini-embedding-001"),
//	    ai.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	))
//
// Requests are split into batches of at most MaxBatchSize texts, the
// service limit for BatchEmbedContents.
package gemini
