package apitest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

func withUser(ctx context.Context, u *user) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(userKey).(*user)
	return u
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Username]; exists {
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	}
	for _, u := range s.users {
		if u.Email == req.Email {
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		}
	}
	s.addUserLocked(req.Username, req.Email, req.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"msg": "Registration successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Username]
	if !ok || u.Password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": s.mintLocked(u.Username, time.Now().Add(s.tokenTTL)),
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"email":      u.Email,
		"created_at": formatTime(&u.CreatedAt),
	})
}

func (s *Server) projectJSONLocked(p *project, withCounts bool) map[string]any {
	out := map[string]any{
		"id":          p.ID,
		"title":       p.Title,
		"description": p.Description,
		"due_date":    formatTime(p.DueDate),
		"created_at":  formatTime(&p.CreatedAt),
	}
	if withCounts {
		total, completed := 0, 0
		for _, t := range s.tasks {
			if t.ProjectID != p.ID {
				continue
			}
			total++
			if t.Status == "completed" {
				completed++
			}
		}
		out["total_tasks"] = total
		out["completed_tasks"] = completed
	}
	return out
}

func taskJSON(t *task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"project_id":  t.ProjectID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"due_date":    formatTime(t.DueDate),
		"created_at":  formatTime(&t.CreatedAt),
	}
}

// ownedProjectLocked returns the project if it exists and belongs to u.
func (s *Server) ownedProjectLocked(u *user, id int64) (*project, bool) {
	p, ok := s.projects[id]
	if !ok || p.UserID != u.ID {
		return nil, false
	}
	return p, true
}

func (s *Server) ownedTaskLocked(u *user, id int64) (*task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	if _, ok := s.ownedProjectLocked(u, t.ProjectID); !ok {
		return nil, false
	}
	return t, true
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []map[string]any{}
	for _, id := range sortedIDs(s.projects) {
		if p := s.projects[id]; p.UserID == u.ID {
			out = append(out, s.projectJSONLocked(p, true))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type projectBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body projectBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil || *body.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	due, ok := parseTime(body.DueDate)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)")
		return
	}

	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p := &project{ID: s.nextID, UserID: u.ID, Title: *body.Title, DueDate: due, CreatedAt: time.Now().UTC()}
	if body.Description != nil {
		p.Description = *body.Description
	}
	s.projects[p.ID] = p
	writeJSON(w, http.StatusCreated, s.projectJSONLocked(p, false))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedProjectLocked(currentUser(r), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, s.projectJSONLocked(p, false))
}

// decodeUpdate decodes an update body into v and also returns the keys that
// were present, so an explicit null can clear a field.
func decodeUpdate(r *http.Request, v any) (map[string]json.RawMessage, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var body projectBody
	keys, err := decodeUpdate(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedProjectLocked(currentUser(r), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if _, present := keys["due_date"]; present {
		due, ok := parseTime(body.DueDate)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)")
			return
		}
		p.DueDate = due
	}
	if body.Title != nil {
		p.Title = *body.Title
	}
	if body.Description != nil {
		p.Description = *body.Description
	}
	writeJSON(w, http.StatusOK, s.projectJSONLocked(p, false))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedProjectLocked(currentUser(r), id); !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, tid)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Project successfully deleted"})
}

type taskBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueDate     *string `json:"due_date"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedProjectLocked(currentUser(r), id); !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	out := []map[string]any{}
	for _, tid := range sortedIDs(s.tasks) {
		if t := s.tasks[tid]; t.ProjectID == id {
			out = append(out, taskJSON(t))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil || *body.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	due, ok := parseTime(body.DueDate)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedProjectLocked(currentUser(r), id); !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	s.nextID++
	t := &task{ID: s.nextID, ProjectID: id, Title: *body.Title, Status: "pending", Priority: "medium", DueDate: due, CreatedAt: time.Now().UTC()}
	if body.Description != nil {
		t.Description = *body.Description
	}
	if body.Status != nil && *body.Status != "" {
		t.Status = *body.Status
	}
	if body.Priority != nil && *body.Priority != "" {
		t.Priority = *body.Priority
	}
	s.tasks[t.ID] = t
	writeJSON(w, http.StatusCreated, taskJSON(t))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTaskLocked(currentUser(r), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, taskJSON(t))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var body taskBody
	keys, err := decodeUpdate(r, &body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.ownedTaskLocked(currentUser(r), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if _, present := keys["due_date"]; present {
		due, ok := parseTime(body.DueDate)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)")
			return
		}
		t.DueDate = due
	}
	if body.Title != nil {
		t.Title = *body.Title
	}
	if body.Description != nil {
		t.Description = *body.Description
	}
	if body.Status != nil {
		t.Status = *body.Status
	}
	if body.Priority != nil {
		t.Priority = *body.Priority
	}
	writeJSON(w, http.StatusOK, taskJSON(t))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ownedTaskLocked(currentUser(r), id); !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	delete(s.tasks, id)
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Task successfully deleted"})
}
