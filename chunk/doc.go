// Package chunk splits normalized document text into ordered passages.
//
// Two strategies are available. The token strategy slides a fixed window of
// ChunkSize tokens over the text, advancing ChunkSize-Overlap tokens per step.
// The section strategy cuts the text at heading lines (lines starting with
// "#"), keeping each heading together with its body; text without any heading
// falls back to the token strategy.
//
// Token counts come from a Tokenizer. Production code uses the cl100k_base
// encoding; WordTokenizer is a dependency-free alternative that round-trips
// exactly and is used in tests and offline setups.
package chunk
