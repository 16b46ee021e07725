package domain

import "context"

// Rasterizer renders the first page of each document to an image file
type Rasterizer interface {
	// Rasterize returns one image per document, in document order
	Rasterize(ctx context.Context, docs []Document) ([]RasterImage, error)
}

// TableModel asks a vision model for the item/price table on an image
type TableModel interface {
	// ExtractTable returns the raw model reply for one image
	ExtractTable(ctx context.Context, imagePath string) (string, error)
	// VisionModel names the model used, for cache keys and reporting
	VisionModel() string
}

// TextModel sends a single free-text prompt
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
	TextModel() string
}

// ChatStreamer streams a chat completion as ordered text fragments
type ChatStreamer interface {
	// StreamChat sends every message and writes reply fragments to resultCh.
	// It does not close resultCh.
	StreamChat(ctx context.Context, messages []ChatMessage, resultCh chan<- string) error
}
