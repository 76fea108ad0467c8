package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/safezone/internal/model"
)

// --- Input/Output types ---

// CheckPathInput defines parameters for the safezone_check_path tool.
type CheckPathInput struct {
	Path   string `json:"path" jsonschema:"target path as the agent will use it"`
	Tier   string `json:"tier" jsonschema:"operation tier: read, write (default), copy_in, copy_out, delete or move"`
	Source string `json:"source,omitempty" jsonschema:"source path for copy_in and move"`
	Tool   string `json:"tool,omitempty" jsonschema:"name of the tool that will perform the operation"`
}

// CheckPathOutput is the path verdict.
type CheckPathOutput struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	Description string `json:"description"`
	Path        string `json:"path,omitempty"`
	Source      string `json:"source,omitempty"`
	Detail      string `json:"detail,omitempty"`
	PolicyHash  string `json:"policy_hash,omitempty"`
}

// CheckCommandInput defines parameters for the safezone_check_command tool.
type CheckCommandInput struct {
	Command string `json:"command" jsonschema:"full command line"`
	Host    string `json:"host,omitempty" jsonschema:"configured host name"`
	Tool    string `json:"tool,omitempty" jsonschema:"name of the tool that will run the command"`
}

// CheckCommandOutput is the command verdict.
type CheckCommandOutput struct {
	Decision    string `json:"decision"`
	Reason      string `json:"reason,omitempty"`
	Description string `json:"description"`
	BaseCommand string `json:"base_command,omitempty"`
	Host        string `json:"host,omitempty"`
	KnownHost   bool   `json:"known_host"`
	PolicyHash  string `json:"policy_hash,omitempty"`
}

// ListZonesInput is empty.
type ListZonesInput struct{}

// ZoneItem describes one safe zone.
type ZoneItem struct {
	Root     string `json:"root"`
	Declared string `json:"declared"`
}

// ListZonesOutput lists the current safe zones.
type ListZonesOutput struct {
	Zones []ZoneItem `json:"zones"`
}

// ListHostsInput is empty.
type ListHostsInput struct{}

// HostItem describes one configured host.
type HostItem struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ListHostsOutput lists configured hosts.
type ListHostsOutput struct {
	Hosts []HostItem `json:"hosts"`
}

// --- Handlers ---

func (s *Server) handleCheckPath(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckPathInput) (*mcpsdk.CallToolResult, CheckPathOutput, error) {
	tier := model.WriteInZone
	var err error
	if input.Tier != "" {
		tier, err = model.ParseTier(input.Tier)
	}
	if err != nil {
		return nil, CheckPathOutput{}, fmt.Errorf("invalid tier %q: %w", input.Tier, err)
	}

	v := s.dispatcher.Dispatch(model.PathAction{
		PathRequest: model.PathRequest{Path: input.Path, Source: input.Source, Tier: tier},
		Tool:        toolName(input.Tool, "safezone_check_path"),
	})

	return nil, CheckPathOutput{
		Decision:    string(v.Decision),
		Reason:      string(v.Reason),
		Description: v.Reason.Description(),
		Path:        v.Path,
		Source:      v.Source,
		Detail:      v.Detail,
		PolicyHash:  v.PolicyHash,
	}, nil
}

func (s *Server) handleCheckCommand(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckCommandInput) (*mcpsdk.CallToolResult, CheckCommandOutput, error) {
	store := s.dispatcher.Snapshot()
	known := false
	if input.Host != "" {
		_, known = store.Host(input.Host)
	}

	v := s.dispatcher.Dispatch(model.CommandAction{
		CommandRequest: model.CommandRequest{Command: input.Command, Host: input.Host},
		Tool:           toolName(input.Tool, "safezone_check_command"),
	})

	return nil, CheckCommandOutput{
		Decision:    string(v.Decision),
		Reason:      string(v.Reason),
		Description: v.Reason.Description(),
		BaseCommand: v.BaseCommand,
		Host:        input.Host,
		KnownHost:   known,
		PolicyHash:  v.PolicyHash,
	}, nil
}

func (s *Server) handleListZones(ctx context.Context, req *mcpsdk.CallToolRequest, input ListZonesInput) (*mcpsdk.CallToolResult, ListZonesOutput, error) {
	zones := s.dispatcher.Snapshot().Zones()
	out := ListZonesOutput{Zones: make([]ZoneItem, 0, len(zones))}
	for _, z := range zones {
		out.Zones = append(out.Zones, ZoneItem{Root: z.Root, Declared: z.Lexical})
	}
	return nil, out, nil
}

func (s *Server) handleListHosts(ctx context.Context, req *mcpsdk.CallToolRequest, input ListHostsInput) (*mcpsdk.CallToolResult, ListHostsOutput, error) {
	hosts := s.dispatcher.Snapshot().Hosts()
	out := ListHostsOutput{Hosts: make([]HostItem, 0, len(hosts))}
	for _, h := range hosts {
		out.Hosts = append(out.Hosts, HostItem{Name: h.Name, Label: h.Label()})
	}
	return nil, out, nil
}

func toolName(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}
