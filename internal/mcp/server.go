package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"approvalflow/backend/internal/engine"
	"approvalflow/backend/internal/tasks"
	"approvalflow/backend/pkg/models"
)

// Server exposes the workflow engine as MCP tools so agent clients can
// drive and inspect approvals.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	tasks     *tasks.Service
}

// NewServer creates the MCP surface over the engine and task services.
func NewServer(eng *engine.Engine, tq *tasks.Service) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Approval Workflow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		engine: eng,
		tasks:  tq,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"start_workflow",
			mcp.WithDescription("Start an approval workflow for a content item"),
			mcp.WithString("template_id", mcp.Required(), mcp.Description("The workflow template to run")),
			mcp.WithString("content_id", mcp.Required(), mcp.Description("The content item under review")),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The initiating user")),
		),
		s.handleStartWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"complete_assignment",
			mcp.WithDescription("Approve or reject an assigned review task"),
			mcp.WithString("assignment_id", mcp.Required(), mcp.Description("The assignment to complete")),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The assigned reviewer")),
			mcp.WithString("action", mcp.Required(), mcp.Description("approved or rejected")),
			mcp.WithString("notes", mcp.Description("Optional review notes")),
		),
		s.handleCompleteAssignment,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_instance",
			mcp.WithDescription("Get the current state of a workflow instance"),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The instance to inspect")),
		),
		s.handleGetInstance,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_my_tasks",
			mcp.WithDescription("List a reviewer's pending tasks"),
			mcp.WithString("user_id", mcp.Required(), mcp.Description("The reviewer")),
			mcp.WithString("status", mcp.Description("pending (default) or completed")),
		),
		s.handleListMyTasks,
	)
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func (s *Server) handleStartWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, ok := stringArg(request, "template_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: template_id"), nil
	}
	contentID, ok := stringArg(request, "content_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: content_id"), nil
	}
	userID, ok := stringArg(request, "user_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}

	detail, err := s.engine.StartWorkflow(ctx, models.StartWorkflowRequest{
		TemplateID: templateID,
		ContentID:  contentID,
	}, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(detail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCompleteAssignment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assignmentID, ok := stringArg(request, "assignment_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: assignment_id"), nil
	}
	userID, ok := stringArg(request, "user_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}
	action, ok := stringArg(request, "action")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: action"), nil
	}
	notes, _ := stringArg(request, "notes")

	detail, err := s.engine.CompleteStage(ctx, assignmentID, userID, models.ReviewAction(action), notes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to complete assignment: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(detail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, ok := stringArg(request, "instance_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: instance_id"), nil
	}

	detail, err := s.tasks.InstanceState(ctx, instanceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get instance: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(detail)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListMyTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := stringArg(request, "user_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: user_id"), nil
	}
	status, _ := stringArg(request, "status")

	list, err := s.tasks.UserTasks(ctx, userID, models.AssignmentStatus(status))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tasks: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(list)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers mounts the MCP endpoints on the given mux.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
