package browser

import (
	"encoding/json"
	"fmt"
)

// Cookie is one browser cookie inside a session artifact.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
}

// Artifact is the serializable state of an authenticated session. Session
// reuse consumers rebuild either a browser session or an HTTP cookie jar
// from it.
type Artifact struct {
	Cookies []Cookie `json:"cookies"`
}

// ParseArtifact decodes a stored session artifact.
func ParseArtifact(raw json.RawMessage) (*Artifact, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty session artifact")
	}
	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("malformed session artifact: %w", err)
	}
	return &artifact, nil
}

// Marshal serializes the artifact for storage.
func (a *Artifact) Marshal() (json.RawMessage, error) {
	return json.Marshal(a)
}
