package mcp

import (
	"context"
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/index"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"file_register": {
		def:     registerToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRegister },
	},
	"file_touch": {
		def:     touchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTouch },
	},
	"file_status": {
		def:     statusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStatus },
	},
	"file_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"file_archive": {
		def:     archiveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchive },
	},
	"file_sweep": {
		def:     sweepToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSweep },
	},
	"consolidate_scan": {
		def:     consolidateScanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConsolidateScan },
	},
	"consolidate_apply": {
		def:     consolidateApplyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConsolidateApply },
	},
	"archive_search": {
		def:     searchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"archive_get": {
		def:     archiveGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchiveGet },
	},
	"archive_sweep": {
		def:     archiveSweepToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchiveSweep },
	},
	"archive_purge": {
		def:     archivePurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchivePurge },
	},
	"archive_reindex": {
		def:     reindexToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReindex },
	},
	"archive_retry_indexing": {
		def:     retryIndexingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRetryIndexing },
	},
	"session_record": {
		def:     sessionRecordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRecord },
	},
	"insight_compute": {
		def:     insightComputeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsightCompute },
	},
	"insight_get": {
		def:     insightGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsightGet },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Loam tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, idx *index.Manager, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"loam",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, idx)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, idx *index.Manager, version string) error {
	s := NewServer(db, cfg, idx, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
