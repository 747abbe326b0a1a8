package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/notebook/internal/app"
	"github.com/kalambet/notebook/internal/model"
	"github.com/kalambet/notebook/internal/tasks"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	App *app.App
}

// NewMCPServer creates an MCP server with the notebook tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"notebook",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("notebook: local notes, tasks, projects, tags and a pomodoro timer."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_notes",
			mcp.WithDescription("Search notes by title, content or tag. An empty query lists every note."),
			mcp.WithString("query", mcp.Description("Case-insensitive search text")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpSearchNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("create_note",
			mcp.WithDescription("Create a markdown note."),
			mcp.WithString("title", mcp.Description("Note title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Markdown body")),
			mcp.WithArray("tags", mcp.Description("Tag names")),
		),
		mcpCreateNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks in position order."),
			mcp.WithString("filter", mcp.Description("all, pending or completed (default all)")),
		),
		mcpListTasks(deps),
	)

	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a task."),
			mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Task details")),
			mcp.WithString("priority", mcp.Description("low, medium or high (default medium)")),
			mcp.WithString("due_date", mcp.Description("Due date, YYYY-MM-DD")),
		),
		mcpCreateTask(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_task",
			mcp.WithDescription("Toggle the completion of a task."),
			mcp.WithString("id", mcp.Description("Task ID"), mcp.Required()),
		),
		mcpCompleteTask(deps),
	)

	s.AddTool(
		mcp.NewTool("create_tag",
			mcp.WithDescription("Create a tag."),
			mcp.WithString("name", mcp.Description("Unique tag name"), mcp.Required()),
			mcp.WithString("color", mcp.Description("Hex color, e.g. #10B981")),
		),
		mcpCreateTag(deps),
	)

	s.AddTool(
		mcp.NewTool("project_stats",
			mcp.WithDescription("Count the notes, tasks and pomodoro sessions of a project."),
			mcp.WithString("id", mcp.Description("Project ID"), mcp.Required()),
		),
		mcpProjectStats(deps),
	)

	s.AddTool(
		mcp.NewTool("trigger_sync",
			mcp.WithDescription("Persist every store now."),
		),
		mcpTriggerSync(deps),
	)

	s.AddTool(
		mcp.NewTool("export_backup",
			mcp.WithDescription("Write a backup file and return its path."),
		),
		mcpExportBackup(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"notebook://pomodoro",
			"Pomodoro Timer",
			mcp.WithResourceDescription("Current session, countdown and settings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePomodoro(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"notebook://tags",
			"Tags",
			mcp.WithResourceDescription("Every tag as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTags(deps),
	)

	return s
}

func mcpSearchNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		found, err := deps.App.Notes.Search(ctx, req.GetString("query", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(found) > limit {
			found = found[:limit]
		}
		if len(found) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(found)
	}
}

func mcpCreateNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		n, err := deps.App.Notes.Create(ctx, model.NoteInput{
			Title:   title,
			Content: req.GetString("content", ""),
			Tags:    req.GetStringSlice("tags", nil),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created note %s", n.ID)), nil
	}
}

func mcpListTasks(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := tasks.Filter(req.GetString("filter", string(tasks.FilterAll)))
		if !filter.Valid() {
			return mcpError("filter must be all, pending or completed"), nil
		}
		all, err := deps.App.Tasks.FetchAll(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing tasks failed: %v", err)), nil
		}
		out := []model.Task{}
		for _, t := range all {
			if filter == tasks.FilterPending && t.Completed || filter == tasks.FilterCompleted && !t.Completed {
				continue
			}
			out = append(out, t)
		}
		return mcpJSON(out)
	}
}

func mcpCreateTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		t, err := deps.App.Tasks.Create(ctx, model.TaskInput{
			Title:       title,
			Description: req.GetString("description", ""),
			Priority:    model.Priority(req.GetString("priority", "")),
			DueDate:     req.GetString("due_date", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create task: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created task %d", t.ID)), nil
	}
}

func mcpCompleteTask(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireID(req)
		if errResult != nil {
			return errResult, nil
		}
		t, err := deps.App.Tasks.ToggleComplete(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to toggle task: %v", err)), nil
		}
		state := "pending"
		if t.Completed {
			state = "completed"
		}
		return mcpText(fmt.Sprintf("Task %d is %s", t.ID, state)), nil
	}
}

func mcpCreateTag(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		t, err := deps.App.Tags.Create(ctx, model.TagInput{Name: name, Color: req.GetString("color", "")})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create tag: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created tag %d %s", t.ID, t.Name)), nil
	}
}

func mcpProjectStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := requireID(req)
		if errResult != nil {
			return errResult, nil
		}
		st, err := deps.App.Projects.LoadStats(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("loading stats failed: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpTriggerSync(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.App.Sync(ctx); err != nil {
			return mcpError(fmt.Sprintf("sync failed: %v", err)), nil
		}
		return mcpText("Synced " + strconv.Itoa(len(deps.App.Registry.Keys())) + " stores"), nil
	}
}

func mcpExportBackup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := deps.App.Download(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}
		return mcpText(path), nil
	}
}

func mcpResourcePomodoro(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st := deps.App.Pomodoro.State()
		return jsonResource(req.Params.URI, timerView{
			Current:       st.Current,
			Running:       st.Running,
			TimeRemaining: st.TimeRemaining,
			Settings:      st.Settings,
		})
	}
}

func mcpResourceTags(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list := deps.App.Tags.State().Tags
		if list == nil {
			list = []model.Tag{}
		}
		return jsonResource(req.Params.URI, list)
	}
}

// requireID reads the string "id" argument as an int64. Numbers are accepted
// as well since clients differ.
func requireID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	if n := req.GetInt("id", 0); n > 0 {
		return int64(n), nil
	}
	s, err := req.RequireString("id")
	if err != nil {
		return 0, mcpError("id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, mcpError(fmt.Sprintf("invalid id %q", s))
	}
	return id, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
