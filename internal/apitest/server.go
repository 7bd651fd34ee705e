// Package apitest provides an in-memory implementation of the task service
// REST contract for tests. It issues HS256 JWT access tokens the same way the
// real service does, so expiry and malformed-token paths can be exercised.
package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/taskdesk/internal/uuid"
)

// TimeLayout is the naive ISO-8601 layout the service emits.
const TimeLayout = "2006-01-02T15:04:05.000000"

var signingKey = []byte("apitest-signing-key")

// Request is a request observed by the server.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

type user struct {
	ID        int64
	Username  string
	Email     string
	Password  string
	CreatedAt time.Time
}

type project struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	DueDate     *time.Time
	CreatedAt   time.Time
}

type task struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *time.Time
	CreatedAt   time.Time
}

// Server is a fake task service backed by maps.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	users    map[string]*user
	projects map[int64]*project
	tasks    map[int64]*task
	revoked  map[string]bool
	requests []Request
	tokenTTL time.Duration
}

// NewServer starts a fake service. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		users:    make(map[string]*user),
		projects: make(map[int64]*project),
		tasks:    make(map[int64]*task),
		revoked:  make(map[string]bool),
		tokenTTL: time.Hour,
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root clients should be pointed at.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Get("/user", s.handleUser)
			r.Get("/projects", s.handleListProjects)
			r.Post("/projects", s.handleCreateProject)
			r.Get("/projects/{id}", s.handleGetProject)
			r.Put("/projects/{id}", s.handleUpdateProject)
			r.Delete("/projects/{id}", s.handleDeleteProject)
			r.Get("/projects/{id}/tasks", s.handleListTasks)
			r.Post("/projects/{id}/tasks", s.handleCreateTask)
			r.Get("/tasks/{id}", s.handleGetTask)
			r.Put("/tasks/{id}", s.handleUpdateTask)
			r.Delete("/tasks/{id}", s.handleDeleteTask)
		})
	})
	return r
}

// AddUser registers a user directly and returns its ID.
func (s *Server) AddUser(username, email, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password)
}

func (s *Server) addUserLocked(username, email, password string) int64 {
	s.nextID++
	s.users[username] = &user{
		ID:        s.nextID,
		Username:  username,
		Email:     email,
		Password:  password,
		CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	return s.nextID
}

// IssueToken mints a valid access token for username.
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked(username, time.Now().Add(s.tokenTTL))
}

// IssueExpiredToken mints an access token whose exp is in the past.
func (s *Server) IssueExpiredToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mintLocked(username, time.Now().Add(-time.Minute))
}

func (s *Server) mintLocked(username string, exp time.Time) string {
	u, ok := s.users[username]
	if !ok {
		panic(fmt.Sprintf("apitest: unknown user %q", username))
	}
	claims := jwt.RegisteredClaims{
		ID:        uuid.New(),
		Subject:   strconv.FormatInt(u.ID, 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

// Revoke makes the server reject token from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	s.revoked[token] = true
	s.mu.Unlock()
}

// AddProject creates a project owned by username and returns its ID.
func (s *Server) AddProject(username, title string, due *time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.projects[s.nextID] = &project{
		ID:        s.nextID,
		UserID:    s.users[username].ID,
		Title:     title,
		DueDate:   due,
		CreatedAt: time.Now().UTC(),
	}
	return s.nextID
}

// AddTask creates a task in projectID and returns its ID.
func (s *Server) AddTask(projectID int64, title, status string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.tasks[s.nextID] = &task{
		ID:        s.nextID,
		ProjectID: projectID,
		Title:     title,
		Status:    status,
		Priority:  "medium",
		CreatedAt: time.Now().UTC(),
	}
	return s.nextID
}

// Requests returns a copy of every request seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the observed requests whose path ends with suffix.
func (s *Server) RequestsTo(suffix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type contextKey int

const userKey contextKey = iota

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token has expired"
			}
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": msg})
			return
		}

		s.mu.Lock()
		revoked := s.revoked[raw]
		var u *user
		for _, candidate := range s.users {
			if strconv.FormatInt(candidate.ID, 10) == claims.Subject {
				u = candidate
			}
		}
		s.mu.Unlock()
		if revoked {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has been revoked"})
			return
		}
		if u == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", TimeLayout} {
		if t, err := time.Parse(layout, *raw); err == nil {
			return &t, true
		}
	}
	return nil, false
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
