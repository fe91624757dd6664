package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/session"
)

// MCPGenerator produces platform content for an authenticated user.
// Implemented by remote.Client.
type MCPGenerator interface {
	Generate(ctx context.Context, creds identity.Credentials, platform generate.Platform, req generate.Request) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session   *session.Controller
	Generator MCPGenerator // optional; if nil, generate returns an error
}

// fieldArgs maps tool argument names onto the flat profile fields.
var fieldArgs = map[string]func(f *profile.Fields) *string{
	"firstName":  func(f *profile.Fields) *string { return &f.FirstName },
	"lastName":   func(f *profile.Fields) *string { return &f.LastName },
	"email":      func(f *profile.Fields) *string { return &f.Email },
	"phone":      func(f *profile.Fields) *string { return &f.Phone },
	"location":   func(f *profile.Fields) *string { return &f.Location },
	"bio":        func(f *profile.Fields) *string { return &f.Bio },
	"profilePic": func(f *profile.Fields) *string { return &f.ProfilePic },
	"linkedIn":   func(f *profile.Fields) *string { return &f.LinkedIn },
	"github":     func(f *profile.Fields) *string { return &f.GitHub },
	"portfolio":  func(f *profile.Fields) *string { return &f.Portfolio },
}

// NewMCPServer creates an MCP server exposing the active profile.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"profilestack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("profilestack: the user's professional profile and platform-specific content generation."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Return the active profile as JSON."),
		),
		mcpGetProfile(deps),
	)

	fieldOpts := []mcp.ToolOption{
		mcp.WithDescription("Update flat profile fields. Omitted fields keep their current value."),
	}
	for _, name := range []string{"firstName", "lastName", "email", "phone", "location", "bio", "profilePic", "linkedIn", "github", "portfolio"} {
		fieldOpts = append(fieldOpts, mcp.WithString(name, mcp.Description("New value for "+name)))
	}
	s.AddTool(mcp.NewTool("update_fields", fieldOpts...), mcpUpdateFields(deps))

	s.AddTool(
		mcp.NewTool("add_entry",
			mcp.WithDescription("Add an entry to one of the profile collections."),
			mcp.WithString("kind", mcp.Description("Collection: education, experience, skills, projects or certifications"), mcp.Required()),
			mcp.WithString("entry", mcp.Description("The entry as a JSON object"), mcp.Required()),
		),
		mcpAddEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_entry",
			mcp.WithDescription("Remove an entry from one of the profile collections."),
			mcp.WithString("kind", mcp.Description("Collection of the entry"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Entry id"), mcp.Required()),
		),
		mcpRemoveEntry(deps),
	)

	s.AddTool(
		mcp.NewTool("generate",
			mcp.WithDescription("Generate platform-optimized content from the profile. Requires a signed-in account."),
			mcp.WithString("platform", mcp.Description("linkedin, github, resume, freelance, job_portal or cover_letter"), mcp.Required()),
			mcp.WithString("jobTitle", mcp.Description("Target role, used by cover_letter")),
			mcp.WithString("company", mcp.Description("Target company, used by cover_letter")),
			mcp.WithString("additionalContext", mcp.Description("Extra context to weave into the content")),
		),
		mcpGenerate(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"User Profile",
			mcp.WithResourceDescription("Active profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := deps.Session.Active()
		if p == nil {
			return mcpError("no active profile: start a guest session or log in"), nil
		}
		b, err := json.Marshal(p)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateFields(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		current := deps.Session.Active()
		if current == nil {
			return mcpError("no active profile: start a guest session or log in"), nil
		}

		f := current.Fields
		changed := 0
		for name, v := range req.GetArguments() {
			field, ok := fieldArgs[name]
			if !ok {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return mcpError(fmt.Sprintf("%s must be a string", name)), nil
			}
			*field(&f) = s
			changed++
		}
		if changed == 0 {
			return mcpError("no fields given"), nil
		}

		p, err := deps.Session.UpdateFields(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to update fields: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Updated %d field(s) on %s %s", changed, p.FirstName, p.LastName)), nil
	}
}

func mcpAddEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		raw, err := req.RequireString("entry")
		if err != nil {
			return mcpError("entry is required"), nil
		}

		e, err := profile.DecodeEntry(profile.Kind(kind), []byte(raw))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid entry: %v", err)), nil
		}
		stored, err := deps.Session.AddEntry(ctx, e)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to add entry: %v", err)), nil
		}

		b, err := json.Marshal(stored)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRemoveEntry(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		err = deps.Session.DeleteEntry(ctx, profile.Kind(kind), id)
		if errors.Is(err, profile.ErrEntryNotFound) {
			return mcpError(fmt.Sprintf("no %s entry with id %s", kind, id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to remove entry: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed %s entry %s", kind, id)), nil
	}
}

func mcpGenerate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Generator == nil {
			return mcpError("generation not available"), nil
		}
		name, err := req.RequireString("platform")
		if err != nil {
			return mcpError("platform is required"), nil
		}
		platform, err := generate.ParsePlatform(name)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		creds, err := deps.Session.Credentials()
		if err != nil {
			return mcpError("generation requires a signed-in account: run profilestack login"), nil
		}

		content, err := deps.Generator.Generate(ctx, creds, platform, generate.Request{
			JobTitle:          req.GetString("jobTitle", ""),
			Company:           req.GetString("company", ""),
			AdditionalContext: req.GetString("additionalContext", ""),
		})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(content), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p := deps.Session.Active()
		if p == nil {
			return nil, session.ErrNoActiveProfile
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
