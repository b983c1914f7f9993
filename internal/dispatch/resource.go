package dispatch

import "context"

// Resource is a single MCP resource handler, matched against a request URI
// via Match before Read is called.
type Resource interface {
	URIPattern() string
	Description() string
	// Match reports whether uri belongs to this resource.
	Match(uri string) bool
	// ResourceType tags the value for cache TTL lookup (e.g. "machines",
	// "machine", "subnets", "tags").
	ResourceType() string
	Read(ctx context.Context, uri string) (content any, err error)
}

// ResourceDescriptor is the resources/list representation of a registered
// Resource.
type ResourceDescriptor struct {
	URIPattern  string `json:"uri"`
	Description string `json:"description"`
}
