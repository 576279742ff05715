package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var stringItems = map[string]any{"type": "string"}

var registerToolDef = mcp.NewTool("file_register",
	mcp.WithDescription("Start lifecycle tracking for a workspace file. Re-registering identical content is a no-op; different content requires update=true."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path")),
	mcp.WithString("content", mcp.Required(), mcp.Description("File content snapshot")),
	mcp.WithString("mode", mcp.Description("Generation mode: minimal (default), professional, research")),
	mcp.WithArray("tags", mcp.Description("Tags for grouping and consolidation"), mcp.Items(stringItems)),
	mcp.WithString("session_id", mcp.Description("Owning session identifier")),
	mcp.WithNumber("retain_days", mcp.Description("Explicit retention hint in days")),
	mcp.WithArray("stakeholders", mcp.Description("Stakeholder importance signals"), mcp.Items(stringItems)),
	mcp.WithArray("frameworks", mcp.Description("Framework importance signals"), mcp.Items(stringItems)),
	mcp.WithBoolean("update", mcp.Description("Replace content of an already-tracked path")),
)

var touchToolDef = mcp.NewTool("file_touch",
	mcp.WithDescription("Record an access: the file returns to Active and its aging clock restarts."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path")),
)

var statusToolDef = mcp.NewTool("file_status",
	mcp.WithDescription("Report a tracked file's lifecycle state, retention score, and next transition estimate."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path")),
	mcp.WithBoolean("include_content", mcp.Description("Include the stored content snapshot")),
)

var listToolDef = mcp.NewTool("file_list",
	mcp.WithDescription("List tracked files, newest modification first."),
	mcp.WithString("state", mcp.Description("Filter by state: active, aging, archive_eligible")),
	mcp.WithString("tag", mcp.Description("Filter by tag")),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Pagination offset")),
)

var archiveToolDef = mcp.NewTool("file_archive",
	mcp.WithDescription("Archive a tracked file immediately. The only way protected files leave Active."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path")),
)

var sweepToolDef = mcp.NewTool("file_sweep",
	mcp.WithDescription("Advance lifecycle states for files past their aging thresholds. Skips if a sweep is already running."),
)

var consolidateScanToolDef = mcp.NewTool("consolidate_scan",
	mcp.WithDescription("Scan active files for merge opportunities. Advisory only: nothing changes until an opportunity is applied."),
)

var consolidateApplyToolDef = mcp.NewTool("consolidate_apply",
	mcp.WithDescription("Merge source files into one destination atomically. Validation failure means zero changes."),
	mcp.WithArray("sources", mcp.Required(), mcp.Description("Source paths to merge (at least 2)"), mcp.Items(stringItems)),
	mcp.WithString("destination", mcp.Required(), mcp.Description("Destination path for the merged file")),
	mcp.WithString("kind", mcp.Description("Opportunity kind for the audit log")),
	mcp.WithNumber("confidence", mcp.Description("Opportunity confidence for the audit log")),
)

var searchToolDef = mcp.NewTool("archive_search",
	mcp.WithDescription("Full-text search over archived files, ranked by relevance. Degrades to partial results if index segments are unreadable."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
	mcp.WithString("category", mcp.Description("Filter by category: general, professional, research")),
	mcp.WithArray("tags", mcp.Description("Filter: every listed tag must be on the record"), mcp.Items(stringItems)),
	mcp.WithNumber("from", mcp.Description("Filter: archived at or after this unix timestamp")),
	mcp.WithNumber("to", mcp.Description("Filter: archived at or before this unix timestamp")),
	mcp.WithNumber("limit", mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Pagination offset")),
)

var archiveGetToolDef = mcp.NewTool("archive_get",
	mcp.WithDescription("Retrieve an archived record by ID."),
	mcp.WithString("archive_id", mcp.Required(), mcp.Description("Archive record ID")),
	mcp.WithBoolean("include_content", mcp.Description("Include the archived content")),
)

var archiveSweepToolDef = mcp.NewTool("archive_sweep",
	mcp.WithDescription("Archive every archive-eligible file. Skips if an archive sweep is already running."),
)

var archivePurgeToolDef = mcp.NewTool("archive_purge",
	mcp.WithDescription("Permanently delete an archived record, leaving an audit entry."),
	mcp.WithString("archive_id", mcp.Required(), mcp.Description("Archive record ID")),
	mcp.WithString("reason", mcp.Required(), mcp.Description("Reason recorded in the audit log")),
)

var reindexToolDef = mcp.NewTool("archive_reindex",
	mcp.WithDescription("Rebuild the search index from the archive store. Recovery path for corrupted segments."),
)

var retryIndexingToolDef = mcp.NewTool("archive_retry_indexing",
	mcp.WithDescription("Retry index ingestion for archive records whose initial indexing failed."),
)

var sessionRecordToolDef = mcp.NewTool("session_record",
	mcp.WithDescription("Append a work session to the history log. History is append-only."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Unique session identifier")),
	mcp.WithArray("files", mcp.Description("Workspace-relative paths touched this session"), mcp.Items(stringItems)),
	mcp.WithString("outcome", mcp.Required(), mcp.Description("Session outcome, e.g. success, abandoned")),
	mcp.WithNumber("duration_minutes", mcp.Required(), mcp.Description("Session duration in minutes")),
)

var insightComputeToolDef = mcp.NewTool("insight_compute",
	mcp.WithDescription("Run the pattern recognizer over the session history and persist a new insight generation."),
)

var insightGetToolDef = mcp.NewTool("insight_get",
	mcp.WithDescription("Return the latest insight generation and the tuning parameters derived from it."),
)
