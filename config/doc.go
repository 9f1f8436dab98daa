// Package config loads process level settings for lectern.
//
// Settings are layered. Defaults come first, then an optional TOML file,
// then a .env file, then LECTERN_* environment variables. Later sources win.
//
// Example file:
//
//	data_dir = "/var/lib/lectern"
//
//	[vectors]
//	backend = "qdrant"
//	qdrant_host = "localhost"
//
//	[ai]
//	provider = "openai"
//	host = "http://localhost:11434/v1"
//	model = "embeddinggemma"
//
//	[ingestion]
//	processing_timeout = "5m"
package config
