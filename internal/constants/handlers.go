// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// MaxPhotosPerFetch is the maximum number of photos to fetch in a single operation
	MaxPhotosPerFetch = 10000

	// DefaultPageSize is the default number of items to fetch per API page
	DefaultPageSize = 1000

	// AlbumChunkSize is the number of photos added to an album per request
	AlbumChunkSize = 200
)

// Label provider names
const (
	ProviderPhotoPrism = "photoprism"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
)
