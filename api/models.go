package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

const (
	MaxTitleLength    = 100
	MaxUsernameLength = 80
	MinPasswordLength = 1
)

var errMissingCredentials = errors.New("please enter both username and password")

// User is the identity returned by GET /user.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt Timestamp `json:"created_at"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (r LoginRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
	if err != nil {
		return errMissingCredentials
	}
	return nil
}

// LoginResponse is the body of a successful POST /login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the profile fields before they are sent.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, MaxUsernameLength)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(MinPasswordLength, 0)),
	)
}

// Credentials returns the login request for the registered profile.
func (r RegisterRequest) Credentials() LoginRequest {
	return LoginRequest{Username: r.Username, Password: r.Password}
}

// Project is a project as returned by the service. TotalTasks and
// CompletedTasks are only populated by ListProjects.
type Project struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	DueDate        *Timestamp `json:"due_date"`
	CreatedAt      Timestamp  `json:"created_at"`
	TotalTasks     int        `json:"total_tasks"`
	CompletedTasks int        `json:"completed_tasks"`
}

// ProjectInput is the writable part of a project. Updates replace every
// field; a nil DueDate clears the due date.
type ProjectInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *Timestamp `json:"due_date"`
}

func (p ProjectInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, MaxTitleLength)),
	)
}

// Input returns the writable fields of p.
func (p Project) Input() ProjectInput {
	return ProjectInput{Title: p.Title, Description: p.Description, DueDate: p.DueDate}
}

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Task is a task as returned by the service.
type Task struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *Timestamp `json:"due_date"`
	CreatedAt   Timestamp  `json:"created_at"`
}

// TaskInput is the writable part of a task. Empty Status and Priority
// default to pending and medium.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *Timestamp `json:"due_date"`
}

func (t TaskInput) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.Required, validation.Length(1, MaxTitleLength)),
		validation.Field(&t.Status, validation.In(StatusPending, StatusInProgress, StatusCompleted)),
		validation.Field(&t.Priority, validation.In(PriorityLow, PriorityMedium, PriorityHigh)),
	)
}

// withDefaults fills the service defaults for unset fields.
func (t TaskInput) withDefaults() TaskInput {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return t
}

// Input returns the writable fields of t.
func (t Task) Input() TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
	}
}
