// Package discovery serves the static agent-card document external
// collaborators use to discover this service's capabilities. The document
// is pure data - no clock, no entropy - so encoding/json.Marshal on a
// struct with a fixed field order is sufficient; this is presentation for
// an HTTP edge, not a hashed region, so it does not go through the
// canonical codec.
package discovery

// ExecuteSentinel is emitted as endpoints.execute for a non-interactive
// deployment that exposes no synchronous execute endpoint.
const ExecuteSentinel = "N/A"

// Endpoints lists the HTTP surfaces an external collaborator can reach.
type Endpoints struct {
	Health  string `json:"health"`
	Metrics string `json:"metrics"`
	Execute string `json:"execute"`
}

// Links points at this service's documentation and source.
type Links struct {
	Documentation string `json:"documentation"`
	Repository    string `json:"repository"`
}

// Card is the agent-card.json document, with a fixed field order.
type Card struct {
	AgentID        string    `json:"agentId"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Version        string    `json:"version"`
	Capabilities   []string  `json:"capabilities"`
	Endpoints      Endpoints `json:"endpoints"`
	SupportedTrust []string  `json:"supportedTrust"`
	Links          Links     `json:"links"`
	Standards      []string  `json:"standards"`
}

// Identity names the values a deployment fills into its Card; everything
// else in the document is fixed.
type Identity struct {
	AgentID       string
	Name          string
	Description   string
	Version       string
	DocsURL       string
	RepositoryURL string
}

// New builds the fixed-shape Card for one deployment's Identity.
func New(id Identity) Card {
	return Card{
		AgentID:      id.AgentID,
		Name:         id.Name,
		Description:  id.Description,
		Version:      id.Version,
		Capabilities: []string{"SAFE_REPORT"},
		Endpoints: Endpoints{
			Health:  "/healthz",
			Metrics: "/metrics",
			Execute: ExecuteSentinel,
		},
		SupportedTrust: []string{"evidence-manifest", "append-only-log"},
		Links: Links{
			Documentation: id.DocsURL,
			Repository:    id.RepositoryURL,
		},
		Standards: []string{"RFC8785", "RFC3339", "RFC6979"},
	}
}
