package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins"
)

// ServerName identifies this implementation to MCP clients.
const ServerName = "jenkins-trigger-mcp"

// GetJobsArgs are the tool arguments for get_jobs.
type GetJobsArgs struct {
	// No arguments
}

// GetJobsResponse is the structured payload of get_jobs. The text content of
// the result carries the bare job list.
type GetJobsResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// TriggerBuildArgs are the tool arguments for trigger_build.
type TriggerBuildArgs struct {
	JobName    string         `json:"job_name" jsonschema:"Name of the Jenkins job to build"`
	Parameters map[string]any `json:"parameters,omitempty" jsonschema:"Build parameters as name to value pairs" values:"scalar"`
}

// buildParameters validates the arguments and converts parameter values to
// the strings Jenkins expects. A nil map stays nil.
func (a TriggerBuildArgs) buildParameters() (map[string]string, error) {
	if strings.TrimSpace(a.JobName) == "" {
		return nil, fmt.Errorf("%w: missing required argument: job_name", jenkins.ErrInvalidInput)
	}
	if a.Parameters == nil {
		return nil, nil
	}
	params := make(map[string]string, len(a.Parameters))
	for k, v := range a.Parameters {
		switch v := v.(type) {
		case string:
			params[k] = v
		case float64:
			params[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			params[k] = v.String()
		case bool:
			params[k] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("%w: parameter %q must be a string, number or boolean, got %T", jenkins.ErrInvalidInput, k, v)
		}
	}
	return params, nil
}

const (
	getJobsDescription = "List all Jenkins jobs with the build parameters each one declares. " +
		"Call this before triggering a build to check that the job name exists and whether it needs parameters."
	triggerBuildDescription = "Trigger a build of a Jenkins job. List the jobs first to validate the job name and to learn its parameters. " +
		"parameters is an optional object such as {\"param1\": \"value1\"}; when a job needs parameters but none are given, " +
		"Jenkins applies the declared defaults. Returns the job URL and the build number assigned to the new build."
)

// toolset dispatches tool calls. It resolves a Connection from source on
// every call and hands it to the handlers explicitly.
type toolset struct {
	handlers *Handlers
	source   jenkins.Source
	logger   *log.Logger
}

// NewServer returns an MCP server exposing get_jobs and trigger_build, with
// Jenkins credentials taken from src. Listing the tools requires the same
// credentials as calling them.
func NewServer(h *Handlers, src jenkins.Source, logger *log.Logger, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	ts := &toolset{handlers: h, source: src, logger: logger}
	ts.addTools(s)
	s.AddReceivingMiddleware(ts.requireConnection)
	return s
}

// NewHTTPHandler serves MCP over stateless streamable HTTP. Every inbound
// request gets its own server bound to that request's query parameters, so
// credentials never carry over from one request to the next.
func NewHTTPHandler(h *Handlers, logger *log.Logger, version string) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		logger.Debug("mcp request", "remote", r.RemoteAddr)
		return NewServer(h, r.URL.Query(), logger, version)
	}, &mcp.StreamableHTTPOptions{
		Stateless:    true,
		GetSessionID: func() string { return "" },
	})
}

func (ts *toolset) addTools(s *mcp.Server) {
	addTool(s, &mcp.Tool{Name: "get_jobs", Description: getJobsDescription}, ts.getJobs)
	addTool(s, &mcp.Tool{Name: "trigger_build", Description: triggerBuildDescription}, ts.triggerBuild)
}

// requireConnection rejects tools/list unless the credentials resolve.
func (ts *toolset) requireConnection(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method == "tools/list" {
			ctx = log.WithContext(ctx, ts.logger.With("method", method))
			if _, err := jenkins.Resolve(ctx, ts.source); err != nil {
				return nil, fail(ctx, err)
			}
		}
		return next(ctx, method, req)
	}
}

func (ts *toolset) getJobs(ctx context.Context, _ *mcp.CallToolRequest, _ GetJobsArgs) (*mcp.CallToolResult, GetJobsResponse, error) {
	ctx, conn, err := ts.begin(ctx, "get_jobs")
	if err != nil {
		return nil, GetJobsResponse{}, err
	}
	jobs, err := ts.handlers.GetJobs(ctx, conn)
	if err != nil {
		return nil, GetJobsResponse{}, fail(ctx, err)
	}
	text, err := json.Marshal(jobs)
	if err != nil {
		return nil, GetJobsResponse{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
	}, GetJobsResponse{Jobs: jobs}, nil
}

func (ts *toolset) triggerBuild(ctx context.Context, _ *mcp.CallToolRequest, args TriggerBuildArgs) (*mcp.CallToolResult, BuildResult, error) {
	params, err := args.buildParameters()
	if err != nil {
		return nil, BuildResult{}, err
	}
	ctx, conn, err := ts.begin(ctx, "trigger_build")
	if err != nil {
		return nil, BuildResult{}, err
	}
	res, err := ts.handlers.TriggerBuild(ctx, conn, args.JobName, params)
	if err != nil {
		return nil, BuildResult{}, fail(ctx, err)
	}
	return structuredResult(*res)
}

// begin attaches a tool-scoped logger to ctx and resolves the connection.
func (ts *toolset) begin(ctx context.Context, tool string) (context.Context, jenkins.Connection, error) {
	logger := ts.logger.With("tool", tool)
	ctx = log.WithContext(ctx, logger)
	conn, err := jenkins.Resolve(ctx, ts.source)
	if err != nil {
		return ctx, jenkins.Connection{}, fail(ctx, err)
	}
	logger = logger.With("jenkins", conn.BaseURL, "user", conn.User)
	logger.Debug("tool call")
	return log.WithContext(ctx, logger), conn, nil
}

func fail(ctx context.Context, err error) error {
	log.FromContext(ctx).Error("tool call failed", "err", err)
	return err
}

func addTool[In, Out any](s *mcp.Server, t *mcp.Tool, h mcp.ToolHandlerFor[In, Out]) {
	t.InputSchema = inputSchema[In]()
	mcp.AddTool(s, t, h)
}

func structuredResult[Out any](out Out) (*mcp.CallToolResult, Out, error) {
	b, err := json.Marshal(out)
	if err != nil {
		var zero Out
		return nil, zero, err
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(b)}},
		StructuredContent: out,
	}, out, nil
}
