// Package mcp exposes the annotation workflow as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
)

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	ListProjects(ctx context.Context) ([]project.ProjectSummary, error)
	GetStatus(ctx context.Context, projectID string) (project.StatusView, error)
	GetTexts(ctx context.Context, projectID string, includeDeleted bool) ([]project.Text, error)
	GetConstraints(ctx context.Context, projectID string, filter project.ConstraintFilter) ([]constraint.Constraint, error)
	Implied(ctx context.Context, projectID, a, b string) (constraint.Implication, error)
	GetClustering(ctx context.Context, projectID string, iteration *int) (*project.Clustering, error)
	AnnotateConstraint(ctx context.Context, projectID, constraintID string, typ *constraint.Type) (*project.Snapshot, error)
	CommentConstraint(ctx context.Context, projectID, constraintID, comment string) (*project.Snapshot, error)
	ApproveConstraints(ctx context.Context, projectID string) (*project.Snapshot, error)
}

// Config contains server configuration.
type Config struct {
	Projects ProjectService
	Version  string
	Logger   *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "clusterbench",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, &tools{projects: cfg.Projects, logger: logger})

	return server
}
