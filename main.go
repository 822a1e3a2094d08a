package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/simonfxr/jenkins-trigger-mcp/internal/config"
	"github.com/simonfxr/jenkins-trigger-mcp/internal/jenkins"
	"github.com/simonfxr/jenkins-trigger-mcp/internal/logging"
	"github.com/simonfxr/jenkins-trigger-mcp/internal/tools"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "jenkins-trigger-mcp",
		Short:        "MCP server to list and trigger Jenkins builds",
		Long:         "Serves the get_jobs and trigger_build tools over MCP. Over HTTP, Jenkins credentials are read from the jenkins_url, jenkins_user and jenkins_token query parameters of each request.",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	config.RegisterServeFlags(root.Flags())

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over streamable HTTP (default) or stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	config.RegisterServeFlags(serve.Flags())

	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Print the Jenkins jobs and their build parameters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd)
		},
	}
	config.RegisterLogFlags(jobs.Flags())
	config.RegisterJenkinsFlags(jobs.Flags())

	root.AddCommand(serve, jobs)
	return root
}

func runServe(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	handlers := tools.NewHandlers()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Stdio {
		logger.Info("starting MCP server over stdio", "jenkins", cfg.JenkinsURL, "user", cfg.JenkinsUser)
		server := tools.NewServer(handlers, cfg.JenkinsSource(), logger, version)
		var t mcp.Transport = &mcp.StdioTransport{}
		if logger.GetLevel() <= log.DebugLevel {
			t = &mcp.LoggingTransport{Transport: t, Writer: os.Stderr}
		}
		if err := server.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server error", "err", err)
			return err
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tools.NewHTTPHandler(handlers, logger, version),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("starting MCP HTTP server", "addr", cfg.HTTPAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logger.Error("http server error", "err", err)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func runJobs(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := log.WithContext(cmd.Context(), logger)

	conn, err := jenkins.Resolve(ctx, cfg.JenkinsSource())
	if err != nil {
		return err
	}
	jobs, err := tools.NewHandlers().GetJobs(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), jobsTable(jobs))
	return nil
}

func jobsTable(jobs []tools.JobSummary) *table.Table {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		params := make([]string, 0, len(job.Parameters))
		for _, p := range job.Parameters {
			desc := p.Name + " (" + p.Type + ")"
			if p.DefaultValue != "" {
				desc += " = " + p.DefaultValue
			}
			if len(p.Choices) > 0 {
				desc += " [" + strings.Join(p.Choices, "|") + "]"
			}
			params = append(params, desc)
		}
		hasParam := "no"
		if job.HasParam {
			hasParam = "yes"
		}
		rows = append(rows, []string{job.Name, hasParam, strings.Join(params, "\n")})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers("Job", "Parameters", "Definitions").
		Rows(rows...)
}
