package domain

import "context"

// RetrieveFunc is the grounded retrieval capability handed to the
// reasoning backend for at most one invocation per turn. It never fails;
// missing grounding is an empty slice.
type RetrieveFunc func(ctx context.Context, query string) []Passage

// ReasonInput carries one turn's completion request to the reasoning backend.
type ReasonInput struct {
	System   string
	History  []Turn
	Message  string
	Retrieve RetrieveFunc
	// RequireRetrieval makes the backend adapter re-prompt once when the
	// model composes an answer without having consulted retrieval.
	RequireRetrieval bool
}

// ReasonOutput is the backend's raw completion before policy parsing.
type ReasonOutput struct {
	Text          string
	UsedRetrieval bool
}
