package transport_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/testserver"
	"github.com/rpggio/clusterbench/internal/transport"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newProject(t *testing.T, ts *testserver.TestServer, id string) {
	t.Helper()
	ts.DoJSON(t, http.MethodPost, "/api/projects", map[string]string{"project_id": id, "name": "Project " + id}, http.StatusCreated, nil)
}

func TestHTTPServer_Health(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})

	for _, path := range []string{"/alive", "/ready", "/health"} {
		status, body := ts.Do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, status, path)
		require.Equal(t, "ok", string(body))
	}
}

func TestHTTPServer_Metrics(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	ts.Do(t, http.MethodGet, "/api/projects", nil)

	status, body := ts.Do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "clusterbench_http_requests_total")
	require.Contains(t, string(body), `route="/api/projects`)
}

func TestHTTPServer_ProjectLifecycle(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	newProject(t, ts, "p1")

	var errBody errorBody
	ts.DoJSON(t, http.MethodPost, "/api/projects", map[string]string{"project_id": "p1", "name": "Again"}, http.StatusConflict, &errBody)
	require.Equal(t, transport.CodeAlreadyExists, errBody.Code)

	var status project.StatusView
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1", map[string]string{"name": "Renamed"}, http.StatusOK, &status)
	require.Equal(t, "Renamed", status.Name)

	var list []project.ProjectSummary
	ts.DoJSON(t, http.MethodGet, "/api/projects", nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	require.Equal(t, "Renamed", list[0].Name)

	ts.DoJSON(t, http.MethodDelete, "/api/projects/p1", nil, http.StatusNoContent, nil)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/status", nil, http.StatusNotFound, &errBody)
	require.Equal(t, transport.CodeNotFound, errBody.Code)
}

func TestHTTPServer_ImportTexts(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	newProject(t, ts, "p1")

	csv := []byte("id,text\nt0,\"hello, world\"\nt1,bonjour\n")
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/texts", csv, http.StatusOK, nil)

	var texts []project.Text
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/texts", nil, http.StatusOK, &texts)
	require.Len(t, texts, 2)
	require.Equal(t, "hello, world", texts[0].Original)

	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/texts/t1/delete", nil, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/texts", nil, http.StatusOK, &texts)
	require.Len(t, texts, 1)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/texts?include_deleted=true", nil, http.StatusOK, &texts)
	require.Len(t, texts, 2)
	require.True(t, texts[1].IsDeleted)

	var errBody errorBody
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/texts", []map[string]string{{"id": "bad id", "text": "x"}}, http.StatusBadRequest, &errBody)
	require.Equal(t, transport.CodeBadRequest, errBody.Code)
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/texts/t9/rename", map[string]string{"text": "x"}, http.StatusNotFound, &errBody)
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/texts/t0/shout", nil, http.StatusNotFound, nil)
}

func TestHTTPServer_Settings(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	newProject(t, ts, "p1")

	var settings project.Settings
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/settings", nil, http.StatusOK, &settings)
	require.Equal(t, project.DefaultSettings(), settings)

	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/settings", map[string]any{
		"clustering": map[string]any{"algorithm": "hierarchical", "nb_clusters": 3, "init": "kmeans++", "max_iteration": 10, "random_seed": 1},
	}, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/settings?iteration_id=0", nil, http.StatusOK, &settings)
	require.Equal(t, "hierarchical", settings.Clustering.Algorithm)

	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/settings", map[string]any{
		"sampling": map[string]any{"nb_to_select": 7},
	}, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/settings", nil, http.StatusOK, &settings)
	require.Equal(t, 7, settings.Sampling.NbToSelect)
	require.Equal(t, project.DefaultSettings().Sampling.Algorithm, settings.Sampling.Algorithm)
	require.Equal(t, project.DefaultSettings().Sampling.RandomSeed, settings.Sampling.RandomSeed)
	require.Equal(t, "hierarchical", settings.Clustering.Algorithm)

	var errBody errorBody
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/settings", map[string]any{"unknown": true}, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/settings", map[string]any{
		"sampling": map[string]any{"nb_to_selct": 3},
	}, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/settings", map[string]any{
		"sampling": map[string]any{"algorithm": "psychic", "nb_to_select": 1},
	}, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/settings?iteration_id=7", nil, http.StatusNotFound, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/settings?iteration_id=x", nil, http.StatusBadRequest, &errBody)
}

func TestHTTPServer_StateErrors(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	newProject(t, ts, "p1")

	var errBody errorBody
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/clustering", nil, http.StatusConflict, &errBody)
	require.Equal(t, transport.CodeBadState, errBody.Code)
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/tasks/cancel", nil, http.StatusConflict, &errBody)
	require.Equal(t, transport.CodeBadState, errBody.Code)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/clustering/0", nil, http.StatusNotFound, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/sampling/-1", nil, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/constraints?type=MAYBE", nil, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/constraints/implied?text_id_a=t0", nil, http.StatusBadRequest, &errBody)
}

func TestHTTPServer_ConstraintsAndDownload(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	newProject(t, ts, "p1")
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/texts", []map[string]string{
		{"id": "t0", "text": "cats purr"},
		{"id": "t1", "text": "cats sleep"},
		{"id": "t2", "text": "stocks fall"},
	}, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/modelization", nil, http.StatusAccepted, nil)
	ts.WaitIdle(t, "p1")
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/clustering", nil, http.StatusAccepted, nil)
	ts.WaitIdle(t, "p1")
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/iterations", nil, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodPost, "/api/projects/p1/sampling", nil, http.StatusAccepted, nil)
	status := ts.WaitIdle(t, "p1")
	require.Equal(t, project.StateSamplingPending, status.State)

	var constraints []constraint.Constraint
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/constraints?iteration_of_sampling=1", nil, http.StatusOK, &constraints)
	require.NotEmpty(t, constraints)
	cid := constraints[0].ID
	path := "/api/projects/p1/constraints/" + url.PathEscape(cid)
	ts.DoJSON(t, http.MethodPut, path+"/annotate", map[string]any{"type": nil}, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodPut, path+"/comment", map[string]string{"comment": "unsure"}, http.StatusOK, nil)
	ts.DoJSON(t, http.MethodPut, path+"/review", map[string]bool{"to_review": true}, http.StatusOK, nil)

	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/constraints?to_review=true", nil, http.StatusOK, &constraints)
	require.Len(t, constraints, 1)
	require.Equal(t, cid, constraints[0].ID)
	require.Equal(t, "unsure", constraints[0].Comment)
	require.True(t, constraints[0].IsHidden)
	require.Nil(t, constraints[0].Type)

	var errBody errorBody
	ts.DoJSON(t, http.MethodPut, path+"/annotate", map[string]string{"type": "MAYBE_LINK"}, http.StatusBadRequest, &errBody)
	ts.DoJSON(t, http.MethodPut, "/api/projects/p1/constraints/garbage/annotate", map[string]string{"type": "MUST_LINK"}, http.StatusBadRequest, &errBody)

	var history []activity.ActivityEntry
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/history?limit=3", nil, http.StatusOK, &history)
	require.Len(t, history, 3)
	require.Equal(t, activity.TypeConstraintUpdated, history[0].ActivityType)

	httpStatus, body := ts.Do(t, http.MethodGet, "/api/projects/p1/download", nil)
	require.Equal(t, http.StatusOK, httpStatus)
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"p1/metadata.json", "p1/constraints.json", "p1/modelization_0.json", "p1/clustering_0.json", "p1/sampling_1.json"} {
		require.True(t, names[want], want)
	}

	var clustering project.Clustering
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/download?file=clustering_0.json", nil, http.StatusOK, &clustering)
	require.Equal(t, 0, clustering.IterationID)
	require.NotEmpty(t, clustering.Labels)

	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/download?file=clustering_9.json", nil, http.StatusNotFound, &errBody)
	require.Equal(t, transport.CodeNotFound, errBody.Code)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/download?file="+url.QueryEscape("../p2/metadata.json"), nil, http.StatusNotFound, &errBody)
	ts.DoJSON(t, http.MethodGet, "/api/projects/p1/download?file=.commit.json", nil, http.StatusNotFound, &errBody)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{project.ErrProjectNotFound, http.StatusNotFound, transport.CodeNotFound},
		{fmt.Errorf("wrapped: %w", project.ErrAlreadyExists), http.StatusConflict, transport.CodeAlreadyExists},
		{project.ErrBadRequest, http.StatusBadRequest, transport.CodeBadRequest},
		{project.ErrBadState, http.StatusConflict, transport.CodeBadState},
		{project.ErrConflict, http.StatusConflict, transport.CodeConflict},
		{project.ErrInconsistent, http.StatusUnprocessableEntity, transport.CodeInconsistent},
		{project.ErrTaskFailed, http.StatusInternalServerError, transport.CodeTaskFailed},
		{errors.New("disk on fire"), http.StatusInternalServerError, transport.CodeInternal},
	}
	for _, tc := range cases {
		status, code := transport.StatusFor(tc.err)
		require.Equal(t, tc.status, status, tc.err.Error())
		require.Equal(t, tc.code, code, tc.err.Error())
	}
}
