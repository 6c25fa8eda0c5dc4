// Package domain defines the records exchanged between the portal, its clients and the orchestrator.
package domain

// Agent is a registry entry in its canonical, post-normalization shape.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ImageURL     string   `json:"imageUrl"`
	Category     string   `json:"category"`
	Capabilities []string `json:"capabilities"`
	Author       string   `json:"author"`
	Developer    string   `json:"developer,omitempty"`
	Verified     bool     `json:"verified"`
	Endpoint     string   `json:"endpoint,omitempty"`
	CreatedAt    *int64   `json:"created_at,omitempty"`
	ManifestHash string   `json:"manifest_hash,omitempty"`
	Version      string   `json:"version,omitempty"`
	HealthCheck  string   `json:"health_check,omitempty"`
}

// RegisterAgentRequest is the body of POST /register on the orchestrator.
type RegisterAgentRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Endpoint     string   `json:"endpoint"`
	Category     string   `json:"category"`
	Developer    string   `json:"developer"`
	AllowedTools []string `json:"allowed_tools"`
	Version      string   `json:"version"`
}

// RegisterAgentResponse is the orchestrator's answer to a registration.
type RegisterAgentResponse struct {
	OK bool `json:"ok"`
}
