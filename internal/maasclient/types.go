// Package maasclient is a thin client for the MAAS REST API: OAuth1
// PLAINTEXT request signing, the "op=" action idiom, and multipart
// uploads. It is deliberately minimal -- this bridge exposes a handful of
// MCP tools and resources, not a full MAAS SDK.
package maasclient

// Machine is the subset of a MAAS machine resource this bridge surfaces.
type Machine struct {
	SystemID     string `json:"system_id"`
	Hostname     string `json:"hostname"`
	Status       string `json:"status_name"`
	PowerState   string `json:"power_state"`
	Architecture string `json:"architecture"`
	CPUCount     int    `json:"cpu_count"`
	MemoryMB     int    `json:"memory"`
	Zone         struct {
		Name string `json:"name"`
	} `json:"zone"`
	TagNames []string `json:"tag_names"`
}

// Subnet is the subset of a MAAS subnet resource this bridge surfaces.
type Subnet struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	CIDR   string `json:"cidr"`
	VLAN   string `json:"vlan"`
	Active bool   `json:"active_discovery"`
}

// Tag is a MAAS tag.
type Tag struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}
