package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
)

const maxBodyBytes = 32 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", project.ErrBadRequest, err)
	}
	return nil
}

func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid %s %q", project.ErrBadRequest, name, raw)
	}
	return v, nil
}

func intParam(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: invalid %s %q", project.ErrBadRequest, name, raw)
	}
	return &v, nil
}

func boolParam(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s %q", project.ErrBadRequest, name, raw)
	}
	return &v, nil
}

// respond writes the status of a mutated project.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, snap *project.Snapshot, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, project.NewStatusView(snap))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req project.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.projects.CreateProject(r.Context(), req)
	s.respond(w, r, http.StatusCreated, snap, err)
}

func (s *Server) renameProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.projects.RenameProject(r.Context(), chi.URLParam(r, "projectID"), req.Name)
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteProject(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.projects.GetStatus(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) downloadProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if name := r.URL.Query().Get("file"); name != "" {
		data, err := s.projects.DownloadFile(r.Context(), projectID, name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	var buf bytes.Buffer
	if err := s.projects.DownloadProject(r.Context(), projectID, &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": projectID + ".zip"}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n := 50
	if limit != nil {
		n = *limit
	}
	entries, err := s.projects.GetHistory(r.Context(), chi.URLParam(r, "projectID"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	iteration, err := intParam(r.URL.Query().Get("iteration_id"), "iteration_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	settings, err := s.projects.GetSettings(r.Context(), chi.URLParam(r, "projectID"), iteration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) editSettings(w http.ResponseWriter, r *http.Request) {
	update, err := project.DecodeSettingsUpdate(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.projects.EditSettings(r.Context(), chi.URLParam(r, "projectID"), update)
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) getTexts(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := boolParam(r.URL.Query().Get("include_deleted"), "include_deleted")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	texts, err := s.projects.GetTexts(r.Context(), chi.URLParam(r, "projectID"), includeDeleted != nil && *includeDeleted)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, texts)
}

func (s *Server) importTexts(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		snap, err := s.projects.ImportTextsCSV(r.Context(), projectID, http.MaxBytesReader(w, r.Body, maxBodyBytes))
		s.respond(w, r, http.StatusOK, snap, err)
		return
	}
	var rows []project.TextInput
	if err := decodeBody(w, r, &rows); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.projects.ImportTexts(r.Context(), projectID, rows)
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) editText(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	textID, err := pathParam(r, "textID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var snap *project.Snapshot
	switch op := chi.URLParam(r, "op"); op {
	case "rename":
		var req struct {
			Text string `json:"text"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err = s.projects.RenameText(r.Context(), projectID, textID, req.Text)
	case "delete":
		snap, err = s.projects.DeleteText(r.Context(), projectID, textID)
	case "undelete":
		snap, err = s.projects.UndeleteText(r.Context(), projectID, textID)
	default:
		http.NotFound(w, r)
		return
	}
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) iterationParam(r *http.Request) (*int, error) {
	return intParam(chi.URLParam(r, "iteration"), "iteration")
}

func (s *Server) getModelization(w http.ResponseWriter, r *http.Request) {
	iteration, err := s.iterationParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.projects.GetModelization(r.Context(), chi.URLParam(r, "projectID"), iteration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getSampling(w http.ResponseWriter, r *http.Request) {
	iteration, err := s.iterationParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sampling, err := s.projects.GetSampling(r.Context(), chi.URLParam(r, "projectID"), iteration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sampling)
}

func (s *Server) getClustering(w http.ResponseWriter, r *http.Request) {
	iteration, err := s.iterationParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	clustering, err := s.projects.GetClustering(r.Context(), chi.URLParam(r, "projectID"), iteration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clustering)
}

func (s *Server) runModelization(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.RunModelization(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusAccepted, snap, err)
}

func (s *Server) runSampling(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.RunSampling(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusAccepted, snap, err)
}

func (s *Server) runClustering(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.RunClustering(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusAccepted, snap, err)
}

func (s *Server) startIteration(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.StartIteration(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) deleteLastIteration(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.DeleteLastIteration(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.CancelTask(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusAccepted, snap, err)
}

func (s *Server) getConstraints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter project.ConstraintFilter
	var err error
	if filter.IterationOfSampling, err = intParam(q.Get("iteration_of_sampling"), "iteration_of_sampling"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.ToReview, err = boolParam(q.Get("to_review"), "to_review"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Hidden, err = boolParam(q.Get("hidden"), "hidden"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Has("type") {
		t := q.Get("type")
		filter.Type = &t
	}

	constraints, err := s.projects.GetConstraints(r.Context(), chi.URLParam(r, "projectID"), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if constraints == nil {
		constraints = []constraint.Constraint{}
	}
	writeJSON(w, http.StatusOK, constraints)
}

func (s *Server) getImplied(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := q.Get("text_id_a"), q.Get("text_id_b")
	if a == "" || b == "" {
		s.writeError(w, r, fmt.Errorf("%w: text_id_a and text_id_b are required", project.ErrBadRequest))
		return
	}
	implied, err := s.projects.Implied(r.Context(), chi.URLParam(r, "projectID"), a, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"text_id_a": a,
		"text_id_b": b,
		"implied":   string(implied),
	})
}

func (s *Server) approveConstraints(w http.ResponseWriter, r *http.Request) {
	snap, err := s.projects.ApproveConstraints(r.Context(), chi.URLParam(r, "projectID"))
	s.respond(w, r, http.StatusOK, snap, err)
}

func (s *Server) editConstraint(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	constraintID, err := pathParam(r, "constraintID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var snap *project.Snapshot
	switch op := chi.URLParam(r, "op"); op {
	case "annotate":
		var req struct {
			Type *constraint.Type `json:"type"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err = s.projects.AnnotateConstraint(r.Context(), projectID, constraintID, req.Type)
	case "comment":
		var req struct {
			Comment string `json:"comment"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err = s.projects.CommentConstraint(r.Context(), projectID, constraintID, req.Comment)
	case "review":
		var req struct {
			ToReview bool `json:"to_review"`
		}
		if err := decodeBody(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		snap, err = s.projects.ReviewConstraint(r.Context(), projectID, constraintID, req.ToReview)
	case "unhide":
		snap, err = s.projects.UnhideConstraint(r.Context(), projectID, constraintID)
	default:
		http.NotFound(w, r)
		return
	}
	s.respond(w, r, http.StatusOK, snap, err)
}
