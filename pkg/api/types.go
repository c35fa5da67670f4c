// Package api holds the request and response shapes of the HTTP surface.
package api

// CreateConversationRequest starts a new conversation. Title is optional;
// an empty title is filled in from the first user message.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// ChatRequest runs one user turn on a conversation.
type ChatRequest struct {
	Message string `json:"message"`
}

// Ping is the health check response.
type Ping struct {
	Status string `json:"status"`
}
