// Package resources implements the concrete MCP resources this bridge
// exposes, each backed by the upstream MAAS client.
package resources

import (
	"context"

	"github.com/maas-mcp/bridge/internal/maasclient"
)

// MachinesResource serves "maas://machines", the full machine inventory.
type MachinesResource struct {
	client *maasclient.Client
}

func NewMachinesResource(client *maasclient.Client) *MachinesResource {
	return &MachinesResource{client: client}
}

func (r *MachinesResource) URIPattern() string  { return "maas://machines" }
func (r *MachinesResource) Description() string { return "every machine known to MAAS" }
func (r *MachinesResource) ResourceType() string { return "machines" }
func (r *MachinesResource) Match(uri string) bool { return uri == "maas://machines" }

func (r *MachinesResource) Read(ctx context.Context, uri string) (any, error) {
	return r.client.ListMachines(ctx)
}

// MachineResource serves "maas://machines/{system_id}", one machine.
type MachineResource struct {
	client *maasclient.Client
}

func NewMachineResource(client *maasclient.Client) *MachineResource {
	return &MachineResource{client: client}
}

func (r *MachineResource) URIPattern() string   { return "maas://machines/{system_id}" }
func (r *MachineResource) Description() string  { return "a single machine by system ID" }
func (r *MachineResource) ResourceType() string { return "machine" }

func (r *MachineResource) Match(uri string) bool {
	const prefix = "maas://machines/"
	return len(uri) > len(prefix) && uri[:len(prefix)] == prefix
}

func (r *MachineResource) Read(ctx context.Context, uri string) (any, error) {
	systemID := uri[len("maas://machines/"):]
	return r.client.GetMachine(ctx, systemID)
}

// SubnetsResource serves "maas://subnets".
type SubnetsResource struct {
	client *maasclient.Client
}

func NewSubnetsResource(client *maasclient.Client) *SubnetsResource {
	return &SubnetsResource{client: client}
}

func (r *SubnetsResource) URIPattern() string    { return "maas://subnets" }
func (r *SubnetsResource) Description() string   { return "every subnet known to MAAS" }
func (r *SubnetsResource) ResourceType() string  { return "subnets" }
func (r *SubnetsResource) Match(uri string) bool { return uri == "maas://subnets" }

func (r *SubnetsResource) Read(ctx context.Context, uri string) (any, error) {
	return r.client.ListSubnets(ctx)
}

// TagsResource serves "maas://tags".
type TagsResource struct {
	client *maasclient.Client
}

func NewTagsResource(client *maasclient.Client) *TagsResource {
	return &TagsResource{client: client}
}

func (r *TagsResource) URIPattern() string    { return "maas://tags" }
func (r *TagsResource) Description() string   { return "every tag known to MAAS" }
func (r *TagsResource) ResourceType() string  { return "tags" }
func (r *TagsResource) Match(uri string) bool { return uri == "maas://tags" }

func (r *TagsResource) Read(ctx context.Context, uri string) (any, error) {
	return r.client.ListTags(ctx)
}
