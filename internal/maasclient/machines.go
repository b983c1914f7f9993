package maasclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// ListMachines returns every machine MAAS knows about.
func (c *Client) ListMachines(ctx context.Context) ([]Machine, error) {
	data, err := c.Get(ctx, "/machines/", nil)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	var machines []Machine
	if err := json.Unmarshal(data, &machines); err != nil {
		return nil, fmt.Errorf("list machines: decode response: %w", err)
	}
	return machines, nil
}

// GetMachine fetches one machine by system ID.
func (c *Client) GetMachine(ctx context.Context, systemID string) (*Machine, error) {
	data, err := c.Get(ctx, "/machines/"+url.PathEscape(systemID)+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("get machine %s: %w", systemID, err)
	}
	var m Machine
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("get machine %s: decode response: %w", systemID, err)
	}
	return &m, nil
}

// AllocateMachine asks MAAS to allocate a machine matching the given
// constraints (e.g. "tags", "zone", "cpu_count") and returns it.
func (c *Client) AllocateMachine(ctx context.Context, constraints url.Values) (*Machine, error) {
	data, err := c.Post(ctx, "/machines/", "allocate", constraints)
	if err != nil {
		return nil, fmt.Errorf("allocate machine: %w", err)
	}
	var m Machine
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("allocate machine: decode response: %w", err)
	}
	return &m, nil
}

// DeployMachine starts deployment of an already-allocated machine.
// distroSeries may be empty to use MAAS's default.
func (c *Client) DeployMachine(ctx context.Context, systemID, distroSeries string) (*Machine, error) {
	form := url.Values{}
	if distroSeries != "" {
		form.Set("distro_series", distroSeries)
	}
	data, err := c.Post(ctx, "/machines/"+url.PathEscape(systemID)+"/", "deploy", form)
	if err != nil {
		return nil, fmt.Errorf("deploy machine %s: %w", systemID, err)
	}
	var m Machine
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("deploy machine %s: decode response: %w", systemID, err)
	}
	return &m, nil
}

// ListSubnets returns every subnet MAAS knows about.
func (c *Client) ListSubnets(ctx context.Context) ([]Subnet, error) {
	data, err := c.Get(ctx, "/subnets/", nil)
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	var subnets []Subnet
	if err := json.Unmarshal(data, &subnets); err != nil {
		return nil, fmt.Errorf("list subnets: decode response: %w", err)
	}
	return subnets, nil
}

// ListTags returns every tag MAAS knows about.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	data, err := c.Get(ctx, "/tags/", nil)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	var tags []Tag
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("list tags: decode response: %w", err)
	}
	return tags, nil
}

// CreateTag creates a new tag.
func (c *Client) CreateTag(ctx context.Context, name, comment string) (*Tag, error) {
	form := url.Values{"name": {name}}
	if comment != "" {
		form.Set("comment", comment)
	}
	data, err := c.Post(ctx, "/tags/", "", form)
	if err != nil {
		return nil, fmt.Errorf("create tag %s: %w", name, err)
	}
	var tag Tag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("create tag %s: decode response: %w", name, err)
	}
	return &tag, nil
}

// UploadScript uploads a user-provided commissioning or deploy script.
func (c *Client) UploadScript(ctx context.Context, name, scriptType string, content []byte) error {
	fields := map[string]string{"name": name, "type": scriptType}
	_, err := c.PostMultipart(ctx, "/scripts/", "", fields, "script", name, content)
	if err != nil {
		return fmt.Errorf("upload script %s: %w", name, err)
	}
	return nil
}
