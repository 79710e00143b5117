package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
)

type tools struct {
	projects ProjectService
	logger   *slog.Logger
}

type ProjectInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project id"`
}

type ListConstraintsInput struct {
	ProjectID           string  `json:"project_id" jsonschema:"Project id"`
	IterationOfSampling *int    `json:"iteration_of_sampling,omitempty" jsonschema:"Only constraints sampled in this iteration"`
	Type                *string `json:"type,omitempty" jsonschema:"MUST_LINK, CANNOT_LINK, or null for unannotated"`
	ToReview            *bool   `json:"to_review,omitempty" jsonschema:"Filter on the review flag"`
	Hidden              *bool   `json:"hidden,omitempty" jsonschema:"Filter on the hidden flag"`
}

type PairInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project id"`
	TextIDA   string `json:"text_id_a" jsonschema:"First text id"`
	TextIDB   string `json:"text_id_b" jsonschema:"Second text id"`
}

type AnnotateInput struct {
	ProjectID string `json:"project_id" jsonschema:"Project id"`
	TextIDA   string `json:"text_id_a" jsonschema:"First text id"`
	TextIDB   string `json:"text_id_b" jsonschema:"Second text id"`
	Type      string `json:"type,omitempty" jsonschema:"MUST_LINK or CANNOT_LINK; empty to abstain"`
}

type CommentInput struct {
	ProjectID    string `json:"project_id" jsonschema:"Project id"`
	ConstraintID string `json:"constraint_id" jsonschema:"Constraint id, (a,b) with a < b"`
	Comment      string `json:"comment" jsonschema:"Free-form comment"`
}

type ClusteringInput struct {
	ProjectID   string `json:"project_id" jsonschema:"Project id"`
	IterationID *int   `json:"iteration_id,omitempty" jsonschema:"Iteration; defaults to the current one"`
}

func registerTools(server *sdkmcp.Server, t *tools) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List every project with its state and current iteration",
	}, t.ListProjects)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Get the workflow state, running task and pending annotation count of a project",
	}, t.GetStatus)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_texts",
		Description: "List the active texts of a project",
	}, t.GetTexts)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_constraints",
		Description: "List constraints, optionally filtered by sampling iteration, type, review flag or hidden flag",
	}, t.ListConstraints)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_pair",
		Description: "Return the relation the annotations already imply between two texts",
	}, t.CheckPair)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "annotate_constraint",
		Description: "Annotate a pair of texts as MUST_LINK or CANNOT_LINK, or abstain",
	}, t.Annotate)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "comment_constraint",
		Description: "Attach a comment to a constraint",
	}, t.Comment)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "approve_constraints",
		Description: "Approve the annotation batch of the current iteration",
	}, t.Approve)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_clustering",
		Description: "Get the cluster labels computed for an iteration",
	}, t.GetClustering)
}

func (t *tools) ListProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, _ struct{}) (*sdkmcp.CallToolResult, any, error) {
	projects, err := t.projects.ListProjects(ctx)
	if err != nil {
		return t.fail("list_projects", err), nil, nil
	}
	return toolJSON(projects)
}

func (t *tools) GetStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, input ProjectInput) (*sdkmcp.CallToolResult, any, error) {
	status, err := t.projects.GetStatus(ctx, input.ProjectID)
	if err != nil {
		return t.fail("get_status", err), nil, nil
	}
	return toolJSON(status)
}

func (t *tools) GetTexts(ctx context.Context, _ *sdkmcp.CallToolRequest, input ProjectInput) (*sdkmcp.CallToolResult, any, error) {
	texts, err := t.projects.GetTexts(ctx, input.ProjectID, false)
	if err != nil {
		return t.fail("get_texts", err), nil, nil
	}
	return toolJSON(texts)
}

func (t *tools) ListConstraints(ctx context.Context, _ *sdkmcp.CallToolRequest, input ListConstraintsInput) (*sdkmcp.CallToolResult, any, error) {
	constraints, err := t.projects.GetConstraints(ctx, input.ProjectID, project.ConstraintFilter{
		IterationOfSampling: input.IterationOfSampling,
		Type:                input.Type,
		ToReview:            input.ToReview,
		Hidden:              input.Hidden,
	})
	if err != nil {
		return t.fail("list_constraints", err), nil, nil
	}
	if constraints == nil {
		constraints = []constraint.Constraint{}
	}
	return toolJSON(constraints)
}

func (t *tools) CheckPair(ctx context.Context, _ *sdkmcp.CallToolRequest, input PairInput) (*sdkmcp.CallToolResult, any, error) {
	implied, err := t.projects.Implied(ctx, input.ProjectID, input.TextIDA, input.TextIDB)
	if err != nil {
		return t.fail("check_pair", err), nil, nil
	}
	return toolJSON(map[string]string{
		"constraint_id": constraint.ID(input.TextIDA, input.TextIDB),
		"implied":       string(implied),
	})
}

func (t *tools) Annotate(ctx context.Context, _ *sdkmcp.CallToolRequest, input AnnotateInput) (*sdkmcp.CallToolResult, any, error) {
	var typ *constraint.Type
	if s := strings.TrimSpace(input.Type); s != "" && s != "null" {
		typ = constraint.TypePtr(constraint.Type(strings.ToUpper(s)))
	}
	if input.TextIDA == input.TextIDB {
		return t.fail("annotate_constraint", fmt.Errorf("%w: a text cannot be paired with itself", project.ErrBadRequest)), nil, nil
	}
	snap, err := t.projects.AnnotateConstraint(ctx, input.ProjectID, constraint.ID(input.TextIDA, input.TextIDB), typ)
	if err != nil {
		return t.fail("annotate_constraint", err), nil, nil
	}
	return toolJSON(project.NewStatusView(snap))
}

func (t *tools) Comment(ctx context.Context, _ *sdkmcp.CallToolRequest, input CommentInput) (*sdkmcp.CallToolResult, any, error) {
	snap, err := t.projects.CommentConstraint(ctx, input.ProjectID, input.ConstraintID, input.Comment)
	if err != nil {
		return t.fail("comment_constraint", err), nil, nil
	}
	return toolJSON(project.NewStatusView(snap))
}

func (t *tools) Approve(ctx context.Context, _ *sdkmcp.CallToolRequest, input ProjectInput) (*sdkmcp.CallToolResult, any, error) {
	snap, err := t.projects.ApproveConstraints(ctx, input.ProjectID)
	if err != nil {
		return t.fail("approve_constraints", err), nil, nil
	}
	return toolJSON(project.NewStatusView(snap))
}

func (t *tools) GetClustering(ctx context.Context, _ *sdkmcp.CallToolRequest, input ClusteringInput) (*sdkmcp.CallToolResult, any, error) {
	clustering, err := t.projects.GetClustering(ctx, input.ProjectID, input.IterationID)
	if err != nil {
		return t.fail("get_clustering", err), nil, nil
	}
	return toolJSON(clustering)
}

func (t *tools) fail(tool string, err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	if apiErr.Code == "INTERNAL" {
		t.logger.Error("tool failed", "tool", tool, "error", err)
	} else {
		t.logger.Debug("tool rejected", "tool", tool, "code", apiErr.Code, "error", err)
	}
	return toolError(err)
}

func toolJSON(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err), nil, nil
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
