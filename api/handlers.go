package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/query"
)

// jobNumberHeader identifies the caller. Authentication itself lives in
// the gateway in front of this service.
const jobNumberHeader = "X-Job-Number"

func caller(r *http.Request) string {
	return r.Header.Get(jobNumberHeader)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (s *Server) handleSave(generate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := caller(r)
		if user == "" {
			s.unauthorized(w)
			return
		}
		p, err := plan.DecodePayload(r.Body)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.flows.SaveProject(r.Context(), p, user, generate)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view, err := s.queries.Project(r.Context(), res.ProjectID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		view.Warnings = res.Warnings
		s.ok(w, view)
	}
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	out, err := s.queries.ProjectSummaries(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, out)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		s.badRequest(w, "invalid project id")
		return
	}
	view, err := s.queries.Project(r.Context(), projectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectId")
	if err != nil {
		s.badRequest(w, "invalid project id")
		return
	}
	if err := s.flows.Generate(r.Context(), projectID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, nil)
}

// submitBody carries the optional completion evidence.
type submitBody struct {
	SubmitText   *string  `json:"submitText"`
	SubmitImages []string `json:"submitImages"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		s.badRequest(w, "invalid task id")
		return
	}
	var body submitBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "invalid request body")
			return
		}
	}
	applyID, err := s.flows.Submit(r.Context(), taskID, user, body.SubmitText, body.SubmitImages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"applyId": applyID})
}

// decisionBody carries an approval or rejection comment.
type decisionBody struct {
	Comment *string  `json:"approvalComment"`
	Images  []string `json:"approvalImages"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	applyID := chi.URLParam(r, "applyId")
	var body decisionBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "invalid request body")
			return
		}
	}
	completed, err := s.flows.Approve(r.Context(), applyID, user, body.Comment, body.Images)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, map[string]any{"isCompleted": completed})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	applyID := chi.URLParam(r, "applyId")
	var body decisionBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "invalid request body")
			return
		}
	}
	comment := ""
	if body.Comment != nil {
		comment = *body.Comment
	}
	if err := s.flows.Reject(r.Context(), applyID, user, comment, body.Images); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, nil)
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	taskID, err := pathID(r, "taskId")
	if err != nil {
		s.badRequest(w, "invalid task id")
		return
	}
	if err := s.flows.Resubmit(r.Context(), taskID, user); err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, nil)
}

// taskFilter parses the listing query parameters.
func taskFilter(r *http.Request) query.TaskFilter {
	q := r.URL.Query()
	f := query.TaskFilter{PageNum: 1, PageSize: 10}
	if v, err := strconv.Atoi(q.Get("pageNum")); err == nil && v > 0 {
		f.PageNum = v
	}
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil && v > 0 {
		f.PageSize = v
	}
	if v, err := strconv.ParseInt(q.Get("projectId"), 10, 64); err == nil {
		f.ProjectID = &v
	}
	if v, err := strconv.ParseInt(q.Get("deptId"), 10, 64); err == nil {
		f.DeptID = &v
	}
	if v, err := strconv.Atoi(q.Get("taskStatus")); err == nil {
		f.Status = &v
	}
	return f
}

func (s *Server) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	page, err := s.queries.MyTasks(r.Context(), user, taskFilter(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, page)
}

func (s *Server) handleMyTaskCategories(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	cats, err := s.queries.MyTaskCategories(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, cats)
}

func (s *Server) handleHistoryTasks(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	page, err := s.queries.HistoryTasks(r.Context(), user, taskFilter(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, page)
}

func (s *Server) handleHistoryCategories(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	cats, err := s.queries.HistoryCategories(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, cats)
}

func (s *Server) handleTeamTasks(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	page, err := s.queries.TeamTasks(r.Context(), user, taskFilter(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, page)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r, "taskId")
	if err != nil {
		s.badRequest(w, "invalid task id")
		return
	}
	detail, err := s.queries.TaskDetail(r.Context(), taskID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, detail)
}

func (s *Server) handleWorkbenchStats(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	if user == "" {
		s.unauthorized(w)
		return
	}
	stats, err := s.queries.WorkbenchStats(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ok(w, stats)
}
