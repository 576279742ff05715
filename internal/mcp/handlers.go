package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/index"
	"github.com/hpungsan/loam/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	idx *index.Manager
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, idx *index.Manager) *Handlers {
	return &Handlers{db: db, cfg: cfg, idx: idx}
}

// Request types for each tool

// RegisterRequest represents the arguments for file_register.
type RegisterRequest struct {
	Path         string   `json:"path"`
	Content      string   `json:"content"`
	Mode         string   `json:"mode,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	RetainDays   int      `json:"retain_days,omitempty"`
	Stakeholders []string `json:"stakeholders,omitempty"`
	Frameworks   []string `json:"frameworks,omitempty"`
	Update       bool     `json:"update,omitempty"`
}

// PathRequest represents the arguments for tools addressing one file.
type PathRequest struct {
	Path string `json:"path"`
}

// StatusRequest represents the arguments for file_status.
type StatusRequest struct {
	Path           string `json:"path"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// ListRequest represents the arguments for file_list.
type ListRequest struct {
	State  *string `json:"state,omitempty"`
	Tag    *string `json:"tag,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}

// SearchRequest represents the arguments for archive_search.
type SearchRequest struct {
	Query    string   `json:"query"`
	Category *string  `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	From     int64    `json:"from,omitempty"`
	To       int64    `json:"to,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// ArchiveGetRequest represents the arguments for archive_get.
type ArchiveGetRequest struct {
	ArchiveID      string `json:"archive_id"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// ArchivePurgeRequest represents the arguments for archive_purge.
type ArchivePurgeRequest struct {
	ArchiveID string `json:"archive_id"`
	Reason    string `json:"reason"`
}

// ConsolidateApplyRequest represents the arguments for consolidate_apply.
type ConsolidateApplyRequest struct {
	Sources     []string `json:"sources"`
	Destination string   `json:"destination"`
	Kind        string   `json:"kind,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
}

// SessionRecordRequest represents the arguments for session_record.
type SessionRecordRequest struct {
	SessionID       string   `json:"session_id"`
	Files           []string `json:"files,omitempty"`
	Outcome         string   `json:"outcome"`
	DurationMinutes int      `json:"duration_minutes"`
}

// Handler implementations

// HandleRegister handles the file_register tool call.
func (h *Handlers) HandleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RegisterRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Register(ctx, h.db, ops.RegisterInput{
		Path:         input.Path,
		Content:      input.Content,
		Mode:         input.Mode,
		Tags:         input.Tags,
		SessionID:    input.SessionID,
		RetainDays:   input.RetainDays,
		Stakeholders: input.Stakeholders,
		Frameworks:   input.Frameworks,
		Update:       input.Update,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleTouch handles the file_touch tool call.
func (h *Handlers) HandleTouch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Touch(ctx, h.db, ops.TouchInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStatus handles the file_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Status(ctx, h.db, h.cfg, ops.StatusInput{
		Path:           input.Path,
		IncludeContent: input.IncludeContent,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the file_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		State:  input.State,
		Tag:    input.Tag,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleArchive handles the file_archive tool call.
func (h *Handlers) HandleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PathRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Archive(ctx, h.db, h.idx, ops.ArchiveInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSweep handles the file_sweep tool call.
func (h *Handlers) HandleSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Sweep(ctx, h.db, h.cfg)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConsolidateScan handles the consolidate_scan tool call.
func (h *Handlers) HandleConsolidateScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.IdentifyConsolidations(ctx, h.db, h.cfg)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleConsolidateApply handles the consolidate_apply tool call.
func (h *Handlers) HandleConsolidateApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConsolidateApplyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ApplyConsolidation(ctx, h.db, ops.ApplyConsolidationInput{
		Sources:     input.Sources,
		Destination: input.Destination,
		Kind:        input.Kind,
		Confidence:  input.Confidence,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the archive_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Search(ctx, h.idx, ops.SearchInput{
		Query:    input.Query,
		Category: input.Category,
		Tags:     input.Tags,
		From:     input.From,
		To:       input.To,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleArchiveGet handles the archive_get tool call.
func (h *Handlers) HandleArchiveGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ArchiveGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetArchive(ctx, h.db, ops.GetArchiveInput{
		ArchiveID:      input.ArchiveID,
		IncludeContent: input.IncludeContent,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleArchiveSweep handles the archive_sweep tool call.
func (h *Handlers) HandleArchiveSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ArchiveSweep(ctx, h.db, h.idx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleArchivePurge handles the archive_purge tool call.
func (h *Handlers) HandleArchivePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ArchivePurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.PurgeArchive(ctx, h.db, h.idx, ops.PurgeArchiveInput{
		ArchiveID: input.ArchiveID,
		Reason:    input.Reason,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReindex handles the archive_reindex tool call.
func (h *Handlers) HandleReindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Reindex(ctx, h.idx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRetryIndexing handles the archive_retry_indexing tool call.
func (h *Handlers) HandleRetryIndexing(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.RetryIndexing(ctx, h.db, h.idx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSessionRecord handles the session_record tool call.
func (h *Handlers) HandleSessionRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RecordSession(ctx, h.db, ops.RecordSessionInput{
		SessionID:       input.SessionID,
		Files:           input.Files,
		Outcome:         input.Outcome,
		DurationMinutes: input.DurationMinutes,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleInsightCompute handles the insight_compute tool call.
func (h *Handlers) HandleInsightCompute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ComputeInsights(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleInsightGet handles the insight_get tool call.
func (h *Handlers) HandleInsightGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetInsights(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if loamErr, ok := err.(*errors.LoamError); ok {
		errorObj := map[string]any{
			"code":    loamErr.Code,
			"message": loamErr.Message,
			"status":  loamErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if loamErr.Code != errors.ErrInternal && loamErr.Code != errors.ErrStorageFailure && loamErr.Details != nil {
			errorObj["details"] = loamErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
