package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `clusterbench runs interactive constrained clustering of short texts.

Core concepts:
- Project: a set of texts, per-iteration settings, pairwise constraints and a workflow state.
- Constraint: an annotation on a pair of texts, MUST_LINK or CANNOT_LINK. Its id is "(a,b)" with a < b.
- Implied relation: what the transitive closure of the annotations says about a pair (MUST_LINK, CANNOT_LINK or UNKNOWN).

Annotation loop:
1) Orient: list_projects, then get_status for the project you work on.
2) Read the sampled pairs: list_constraints with iteration_of_sampling set to the current iteration.
3) Before annotating, check_pair to see whether the graph already implies a relation.
4) annotate_constraint each pair. An INCONSISTENT error means the annotation contradicts the graph.
5) approve_constraints once every pair of the iteration has an answer.

Docs:
- clusterbench://docs/states (workflow states and what each allows)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "clusterbench://docs/states",
		Name:        "docs_states",
		Title:       "Workflow states",
		Description: "The project state machine and the actions each state allows.",
		Content: `# Workflow states

Idle states accept edits. Working states run one background task and only accept a cancel.

| State | Allows |
|---|---|
| INITIALIZATION_WITHOUT_MODELIZATION | import texts, edit settings, run modelization |
| INITIALIZATION_WITH_PENDING_MODELIZATION_CHANGES | same as above |
| INITIALIZATION_WITH_ERRORS | same as above; last_error explains the failure |
| SAMPLING_TODO | run sampling, edit settings and texts |
| SAMPLING_PENDING | annotate, approve |
| ANNOTATION_WITH_UPTODATE_MODELIZATION | annotate, approve, edit texts |
| ANNOTATION_WITH_OUTDATED_MODELIZATION | annotate, approve, run modelization |
| ANNOTATION_WITH_PENDING_MODELIZATION_CHANGES | annotate, run modelization |
| ANNOTATION_WITH_ERRORS | run modelization; last_error explains the failure |
| CLUSTERING_TODO | run clustering |
| CLUSTERING_WITH_ERRORS | run clustering again |
| CLUSTERING_PENDING | start the next iteration |
| ITERATION_END | raise max_iteration_for_annotation to continue |

Annotating a pair that was not sampled creates a manual constraint for the current iteration.
Deleting a text hides every constraint that references it; undeleting does not unhide them.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
