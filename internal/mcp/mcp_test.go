package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/loam/internal/config"
	"github.com/hpungsan/loam/internal/db"
	"github.com/hpungsan/loam/internal/errors"
	"github.com/hpungsan/loam/internal/index"
)

// testSetup creates a temporary database, index, and config for testing.
func testSetup(t *testing.T) (*sql.DB, *config.Config, *index.Manager, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}

	cfg := config.DefaultConfig()
	idx := index.NewManager(database, db.IndexDir(tmpDir), cfg.SegmentMaxRecords)

	cleanup := func() {
		idx.Close()
		database.Close()
	}

	return database, cfg, idx, cleanup
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// TestHandleRegister tests the register handler.
func TestHandleRegister(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "register valid file",
			args: map[string]any{
				"path":    "notes/plan.md",
				"content": "# Plan\n\nQuarterly planning notes.",
				"mode":    "professional",
				"tags":    []any{"planning", "q3"},
			},
			wantError: false,
		},
		{
			name: "register without content",
			args: map[string]any{
				"path": "notes/empty.md",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name: "register identical content replays",
			args: map[string]any{
				"path":    "notes/plan.md",
				"content": "# Plan\n\nQuarterly planning notes.",
				"mode":    "professional",
				"tags":    []any{"planning", "q3"},
			},
			wantError: false,
		},
		{
			name: "register different content without update",
			args: map[string]any{
				"path":    "notes/plan.md",
				"content": "entirely new content",
			},
			wantError: true,
			errorCode: "CONFLICT",
		},
		{
			name: "register different content with update",
			args: map[string]any{
				"path":    "notes/plan.md",
				"content": "entirely new content",
				"update":  true,
			},
			wantError: false,
		},
		{
			name: "register escaping path",
			args: map[string]any{
				"path":    "../outside.md",
				"content": "nope",
			},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := makeRequest(tt.args)
			result, err := h.HandleRegister(ctx, req)

			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else {
				if result.IsError {
					t.Errorf("expected success, got error: %v", extractErrorMessage(result))
				}
			}
		})
	}
}

// TestHandleTouchAndStatus tests touch and status handlers together.
func TestHandleTouchAndStatus(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	storeReq := makeRequest(map[string]any{
		"path":    "touch-me.md",
		"content": "content to keep alive",
	})
	if result, _ := h.HandleRegister(ctx, storeReq); result.IsError {
		t.Fatalf("setup register failed: %v", extractErrorMessage(result))
	}

	t.Run("touch existing", func(t *testing.T) {
		req := makeRequest(map[string]any{"path": "touch-me.md"})
		result, err := h.HandleTouch(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if result.IsError {
			t.Errorf("expected success, got error: %v", extractErrorMessage(result))
		}
	})

	t.Run("touch missing", func(t *testing.T) {
		req := makeRequest(map[string]any{"path": "never-registered.md"})
		result, err := h.HandleTouch(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Error("expected error result for missing path")
		}
		assertErrorCode(t, result, "NOT_FOUND")
	})

	t.Run("status includes estimate", func(t *testing.T) {
		req := makeRequest(map[string]any{"path": "touch-me.md"})
		result, err := h.HandleStatus(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		file := output["file"].(map[string]any)
		if file["state"] != "active" {
			t.Errorf("state = %v, want active", file["state"])
		}
		if output["estimate"] == nil {
			t.Error("expected a next transition estimate")
		}
	})

	t.Run("status omits content by default", func(t *testing.T) {
		req := makeRequest(map[string]any{"path": "touch-me.md"})
		result, err := h.HandleStatus(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["content"] != nil && output["content"] != "" {
			t.Error("status should omit content unless include_content is set")
		}
	})

	t.Run("status with include_content", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"path":            "touch-me.md",
			"include_content": true,
		})
		result, err := h.HandleStatus(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		if output["content"] != "content to keep alive" {
			t.Errorf("content = %v, want stored snapshot", output["content"])
		}
	})
}

// TestHandleList tests the list handler with contract assertions.
func TestHandleList(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	for _, name := range []string{"list-1.md", "list-2.md", "list-3.md"} {
		req := makeRequest(map[string]any{
			"path":    name,
			"content": "listable content for " + name,
			"tags":    []any{"listing"},
		})
		if result, _ := h.HandleRegister(ctx, req); result.IsError {
			t.Fatalf("setup register failed: %v", extractErrorMessage(result))
		}
	}

	t.Run("pagination metadata correct", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"limit":  1,
			"offset": 0,
		})
		result, err := h.HandleList(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		pagination := output["pagination"].(map[string]any)

		if int(pagination["limit"].(float64)) != 1 {
			t.Errorf("pagination.limit = %v, want 1", pagination["limit"])
		}
		if pagination["has_more"] != true {
			t.Errorf("pagination.has_more = %v, want true", pagination["has_more"])
		}
		if int(pagination["total"].(float64)) != 3 {
			t.Errorf("pagination.total = %v, want 3", pagination["total"])
		}
	})

	t.Run("list never returns content", func(t *testing.T) {
		req := makeRequest(map[string]any{})
		result, err := h.HandleList(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		items := output["items"].([]any)
		for i, item := range items {
			m := item.(map[string]any)
			if m["content"] != nil {
				t.Errorf("item[%d] has content, list should never include it", i)
			}
		}
	})

	t.Run("invalid state filter", func(t *testing.T) {
		req := makeRequest(map[string]any{"state": "archived"})
		result, err := h.HandleList(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result for archived state filter")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

// TestHandleArchiveAndSearch exercises the archive-then-search path end to end.
func TestHandleArchiveAndSearch(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	storeReq := makeRequest(map[string]any{
		"path":    "research/findings.md",
		"content": "kubernetes operator deployment findings",
		"mode":    "research",
	})
	if result, _ := h.HandleRegister(ctx, storeReq); result.IsError {
		t.Fatalf("setup register failed: %v", extractErrorMessage(result))
	}

	archiveReq := makeRequest(map[string]any{"path": "research/findings.md"})
	archiveResult, err := h.HandleArchive(ctx, archiveReq)
	if err != nil {
		t.Fatalf("archive handler returned error: %v", err)
	}
	archiveOutput := parseOutput(t, archiveResult)
	archiveID := archiveOutput["archive_id"].(string)
	if archiveID == "" {
		t.Fatal("expected a non-empty archive_id")
	}
	if archiveOutput["category"] != "research" {
		t.Errorf("category = %v, want research", archiveOutput["category"])
	}

	t.Run("search finds archived file", func(t *testing.T) {
		req := makeRequest(map[string]any{"query": "kubernetes"})
		result, err := h.HandleSearch(ctx, req)
		if err != nil {
			t.Fatalf("search handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		items := output["items"].([]any)
		if len(items) != 1 {
			t.Fatalf("got %d items, want 1", len(items))
		}
		hit := items[0].(map[string]any)
		if hit["archive_id"] != archiveID {
			t.Errorf("archive_id = %v, want %v", hit["archive_id"], archiveID)
		}
	})

	t.Run("search rejects blank query", func(t *testing.T) {
		req := makeRequest(map[string]any{"query": "   "})
		result, err := h.HandleSearch(ctx, req)
		if err != nil {
			t.Fatalf("search handler returned error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result for blank query")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("get archived record", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"archive_id":      archiveID,
			"include_content": true,
		})
		result, err := h.HandleArchiveGet(ctx, req)
		if err != nil {
			t.Fatalf("archive_get handler returned error: %v", err)
		}
		output := parseOutput(t, result)
		record := output["record"].(map[string]any)
		if record["path"] != "research/findings.md" {
			t.Errorf("path = %v, want research/findings.md", record["path"])
		}
		if output["content"] != "kubernetes operator deployment findings" {
			t.Errorf("content = %v, want archived snapshot", output["content"])
		}
	})

	t.Run("purge removes record", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"archive_id": archiveID,
			"reason":     "test cleanup",
		})
		result, err := h.HandleArchivePurge(ctx, req)
		if err != nil {
			t.Fatalf("archive_purge handler returned error: %v", err)
		}
		if result.IsError {
			t.Fatalf("purge failed: %v", extractErrorMessage(result))
		}

		getReq := makeRequest(map[string]any{"archive_id": archiveID})
		getResult, _ := h.HandleArchiveGet(ctx, getReq)
		if !getResult.IsError {
			t.Error("purged record should not be found")
		}
	})
}

// TestHandleSessionAndInsights tests session recording and insight handlers.
func TestHandleSessionAndInsights(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	t.Run("record session", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"session_id":       "sess-1",
			"files":            []any{"a.md", "b.md"},
			"outcome":          "success",
			"duration_minutes": 45,
		})
		result, err := h.HandleSessionRecord(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if result.IsError {
			t.Fatalf("session_record failed: %v", extractErrorMessage(result))
		}
	})

	t.Run("duplicate session rejected", func(t *testing.T) {
		req := makeRequest(map[string]any{
			"session_id":       "sess-1",
			"outcome":          "success",
			"duration_minutes": 10,
		})
		result, err := h.HandleSessionRecord(ctx, req)
		if err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
		if !result.IsError {
			t.Fatal("expected error result for duplicate session")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})

	t.Run("compute and get insights", func(t *testing.T) {
		computeResult, err := h.HandleInsightCompute(ctx, makeRequest(map[string]any{}))
		if err != nil {
			t.Fatalf("insight_compute handler returned error: %v", err)
		}
		computeOutput := parseOutput(t, computeResult)
		if int(computeOutput["sessions"].(float64)) != 1 {
			t.Errorf("sessions = %v, want 1", computeOutput["sessions"])
		}

		getResult, err := h.HandleInsightGet(ctx, makeRequest(map[string]any{}))
		if err != nil {
			t.Fatalf("insight_get handler returned error: %v", err)
		}
		getOutput := parseOutput(t, getResult)
		insights := getOutput["insights"].([]any)
		if len(insights) == 0 {
			t.Error("expected insights after compute")
		}
	})
}

// TestHandleSweeps exercises the sweep handlers on an empty store.
func TestHandleSweeps(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	sweepResult, err := h.HandleSweep(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("sweep handler returned error: %v", err)
	}
	output := parseOutput(t, sweepResult)
	if output["skipped"] != false {
		t.Errorf("skipped = %v, want false", output["skipped"])
	}

	archiveSweepResult, err := h.HandleArchiveSweep(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("archive sweep handler returned error: %v", err)
	}
	archiveOutput := parseOutput(t, archiveSweepResult)
	if int(archiveOutput["archived"].(float64)) != 0 {
		t.Errorf("archived = %v, want 0", archiveOutput["archived"])
	}
}

// TestHandleConsolidateScan tests the scan handler on an empty store.
func TestHandleConsolidateScan(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	h := NewHandlers(database, cfg, idx)
	ctx := context.Background()

	result, err := h.HandleConsolidateScan(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("consolidate_scan failed: %v", extractErrorMessage(result))
	}
}

func TestServerRegistration(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	s := NewServer(database, cfg, idx, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"file_register",
		"file_touch",
		"file_status",
		"file_list",
		"file_archive",
		"file_sweep",
		"consolidate_scan",
		"consolidate_apply",
		"archive_search",
		"archive_get",
		"archive_sweep",
		"archive_purge",
		"archive_reindex",
		"archive_retry_indexing",
		"session_record",
		"insight_compute",
		"insight_get",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = []string{"archive_purge", "consolidate_apply"}
	s := NewServer(database, cfg, idx, "test")
	tools := s.ListTools()

	if len(tools) != 15 {
		t.Errorf("registered tool count = %d, want 15", len(tools))
	}

	for _, name := range []string{"archive_purge", "consolidate_apply"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}

	for _, name := range []string{"file_register", "archive_search", "file_list"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("core tool %q should be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	database, cfg, idx, cleanup := testSetup(t)
	defer cleanup()

	cfg.DisabledTools = AllToolNames()
	s := NewServer(database, cfg, idx, "test")
	tools := s.ListTools()

	if len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"archive_purge", "file_sweep"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"archive_purge", "fake_tool"},
			wantLen: 1,
		},
		{
			name:    "all unknown",
			input:   []string{"foo", "bar", "baz"},
			wantLen: 3,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()

	if len(names) != 17 {
		t.Errorf("AllToolNames() returned %d names, want 17", len(names))
	}

	unknown := ValidateDisabledTools(names)
	if len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_StorageFailureDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewStorageFailure("ingest", fmt.Errorf("disk I/O error at offset 4096")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrStorageFailure) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrStorageFailure)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected STORAGE_FAILURE errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	originalErr := errors.NewNotFound("plan.md")
	wrappedErr := fmt.Errorf("sources[2]: %w", originalErr)

	r := errorResult(wrappedErr)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
