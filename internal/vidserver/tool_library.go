package vidserver

import (
	"context"

	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/anatolykoptev/go_vidmark/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// LibraryCheckInput is the input for library_check.
type LibraryCheckInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner user id (default: configured user)"`
	Repair bool   `json:"repair,omitempty" jsonschema:"Fix the reported drift"`
}

// LibraryCheckResult is the output for library_check.
type LibraryCheckResult struct {
	library.Report
	Clean    bool `json:"clean"`
	Repaired bool `json:"repaired"`
}

func registerLibraryCheck(server *mcp.Server, t *tools) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "library_check",
		Description: "Check the user's videos and lists for dangling references and list membership that disagrees with a video's list. With repair=true the drift is fixed, treating each video's list as authoritative.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input LibraryCheckInput) (*mcp.CallToolResult, *LibraryCheckResult, error) {
		out, err := t.libraryCheck(ctx, input)
		return nil, out, err
	})
}

func (t *tools) libraryCheck(ctx context.Context, in LibraryCheckInput) (*LibraryCheckResult, error) {
	user := toolutil.ResolveUser(in.UserID)
	check := t.svc.CheckIntegrity
	if in.Repair {
		check = t.svc.Repair
	}
	rep, err := check(ctx, user)
	if err != nil {
		return nil, err
	}
	return &LibraryCheckResult{Report: rep, Clean: rep.Clean(), Repaired: in.Repair && !rep.Clean()}, nil
}
