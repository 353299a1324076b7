// Package mcpserver exposes a session.State as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eclass-mcp/internal/assert"
	"eclass-mcp/internal/session"
	"eclass-mcp/internal/telemetry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	report_tool_call  = "tool.call"
	report_tool_error = "tool.error"
	report_shutdown   = "shutdown"
)

const (
	TransportStdio          = "stdio"
	TransportStreamableHttp = "streamable-http"
)

const Name = "eclass-mcp"

type Server struct {
	state *session.State
	tel   telemetry.API
	mcp   *server.MCPServer
}

func New(state *session.State, version string, tel telemetry.API) *Server {
	assert.NotNil(state)
	assert.NotNil(tel)

	s := &Server{
		state: state,
		tel:   telemetry.NewScopedAPI("mcpserver", tel),
		mcp: server.NewMCPServer(
			Name,
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

func noArgs(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("random_string",
			mcp.Description("Dummy parameter for no-parameter tools"),
		),
	)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(noArgs(
		"login",
		"Log in to eClass through the institution's SSO using the configured username and password (ECLASS_USERNAME, ECLASS_PASSWORD).",
	), s.handleLogin)
	s.mcp.AddTool(noArgs(
		"get_courses",
		"Get the list of enrolled courses from eClass.",
	), s.handleGetCourses)
	s.mcp.AddTool(noArgs(
		"logout",
		"Log out from eClass.",
	), s.handleLogout)
	s.mcp.AddTool(noArgs(
		"authstatus",
		"Check authentication status with eClass.",
	), s.handleAuthStatus)
}

func (s *Server) result(tool, text string, failed bool) *mcp.CallToolResult {
	if failed {
		s.tel.ReportWarning(report_tool_error, tool, text)
		return mcp.NewToolResultError(text)
	}
	return mcp.NewToolResultText(text)
}

func (s *Server) handleLogin(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.tel.ReportDebug(report_tool_call, "tool", "login")
	text, failed := FormatLogin(s.state.Authenticate(ctx))
	return s.result("login", text, failed), nil
}

func (s *Server) handleGetCourses(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.tel.ReportDebug(report_tool_call, "tool", "get_courses")
	courses, err := s.state.Courses(ctx)
	if err != nil {
		return s.result("get_courses", errorText(err.Error()), true), nil
	}
	return s.result("get_courses", FormatCourses(courses), false), nil
}

func (s *Server) handleLogout(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.tel.ReportDebug(report_tool_call, "tool", "logout")
	return s.result("logout", FormatLogout(s.state.Logout(ctx)), false), nil
}

func (s *Server) handleAuthStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.tel.ReportDebug(report_tool_call, "tool", "authstatus")
	return s.result("authstatus", FormatStatus(s.state.Status(ctx)), false), nil
}

// Serve blocks until the transport stops. The streamable http transport
// also stops when ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport, listenAddr string) error {
	switch transport {
	case TransportStdio:
		return server.ServeStdio(s.mcp)
	case TransportStreamableHttp:
		httpServer := server.NewStreamableHTTPServer(
			s.mcp,
			server.WithEndpointPath("/mcp"),
		)
		errs := make(chan error, 1)
		go func() {
			errs <- httpServer.Start(listenAddr)
		}()
		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				s.tel.ReportWarning(report_shutdown, err)
			}
			err := <-errs
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	default:
		return fmt.Errorf("unsupported server transport: %s", transport)
	}
}
