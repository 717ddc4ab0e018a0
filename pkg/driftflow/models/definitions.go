package models

import "time"

// CreateDefinitionRequest is the payload for creating a draft definition.
// Content is the serialized graph in the declared Format (json or yaml).
type CreateDefinitionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Trigger     string `json:"trigger"`
	Schedule    string `json:"schedule,omitempty"`
	Format      string `json:"format"`
	Content     string `json:"content"`
}

type CreateDefinitionResponse struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

type ValidateDefinitionRequest struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ValidateDefinitionResponse enumerates every problem found, not just the
// first.
type ValidateDefinitionResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type PublishDefinitionResponse struct {
	ID        string `json:"id"`
	Version   int    `json:"version"`
	Published bool   `json:"published"`
}

// DefinitionApiResponse is the API projection of a stored definition.
type DefinitionApiResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     int       `json:"version"`
	Trigger     string    `json:"trigger"`
	Schedule    string    `json:"schedule,omitempty"`
	Format      string    `json:"format"`
	Content     string    `json:"content,omitempty"`
	Published   bool      `json:"published"`
	Team        string    `json:"team,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
}
