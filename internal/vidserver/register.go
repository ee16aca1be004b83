// Package vidserver exposes the library operations as MCP tools.
package vidserver

import (
	"github.com/anatolykoptev/go_vidmark/internal/library"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolCount is the number of tools RegisterTools adds.
const toolCount = 13

// tools holds the dependencies of every tool handler.
type tools struct {
	svc *library.Service
}

var (
	readOnly    = &mcp.ToolAnnotations{ReadOnlyHint: true}
	destructive = &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)}
)

func boolPtr(b bool) *bool { return &b }

// RegisterTools registers all video and list tools on the given MCP server
// and returns how many were added.
func RegisterTools(server *mcp.Server, svc *library.Service) int {
	t := &tools{svc: svc}

	registerVideoAdd(server, t)
	registerVideoList(server, t)
	registerVideoFavorite(server, t)
	registerVideoDelete(server, t)
	registerVideoEmbed(server)

	registerListCreate(server, t)
	registerListGet(server, t)
	registerListRename(server, t)
	registerListDelete(server, t)
	registerListVideos(server, t)
	registerListAddVideo(server, t)
	registerListRemoveVideo(server, t)

	registerLibraryCheck(server, t)
	return toolCount
}
