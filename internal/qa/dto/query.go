package dto

// QueryRequest asks a natural-language question against the local index.
// MaxSources caps the citations in the answer; zero means the default.
type QueryRequest struct {
	Question   string `json:"question" binding:"required"`
	MaxSources int    `json:"max_sources"`
}
