package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status is the workflow state of a complaint.
type Status string

// Complaint workflow states. Values match the complaints API wire format.
const (
	StatusPending   Status = "PENDIENTE"
	StatusInReview  Status = "EN_REVISION"
	StatusValidated Status = "VALIDADA"
	StatusRejected  Status = "RECHAZADA"
	StatusClosed    Status = "CERRADA"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusInReview, StatusValidated, StatusRejected, StatusClosed}

var statusLabels = map[Status]string{
	StatusPending:   "Pendiente",
	StatusInReview:  "En revisión",
	StatusValidated: "Validada",
	StatusRejected:  "Rechazada",
	StatusClosed:    "Cerrada",
}

var statusAliases = map[string]Status{
	"pending":   StatusPending,
	"inreview":  StatusInReview,
	"validated": StatusValidated,
	"rejected":  StatusRejected,
	"closed":    StatusClosed,
}

// transitions is forward-biased: a rejected complaint may be reopened for
// review, closed is terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusInReview, StatusValidated, StatusRejected, StatusClosed},
	StatusInReview:  {StatusValidated, StatusRejected, StatusClosed, StatusPending},
	StatusValidated: {StatusClosed},
	StatusRejected:  {StatusClosed, StatusInReview},
	StatusClosed:    nil,
}

// ParseStatus accepts the wire value or the English name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if key == "" {
		return "", NewAppError(CodeValidation, "Debe indicar un estado.", nil)
	}
	if _, ok := statusLabels[Status(key)]; ok {
		return Status(key), nil
	}
	alias := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(key))
	if st, ok := statusAliases[alias]; ok {
		return st, nil
	}
	return "", NewAppError(CodeValidation, fmt.Sprintf("Estado %q no válido.", s), nil)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label is the display name shown to staff.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// CanTransition reports whether a complaint in state s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Category classifies a complaint.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	ColorHex string `json:"color_hex,omitempty"`
}

// UserRef is the short form of a portal or citizen user embedded in records.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Complaint is the read-mostly projection of a citizen complaint.
type Complaint struct {
	ID              int64      `json:"id"`
	Category        Category   `json:"category"`
	LicensePlate    string     `json:"license_plate"`
	Municipality    string     `json:"municipality"`
	Sector          string     `json:"sector"`
	Description     string     `json:"description"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	Address         string     `json:"address"`
	Status          Status     `json:"status"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ValidatedAt     *time.Time `json:"validated_at,omitempty"`
	Reporter        *UserRef   `json:"reporter,omitempty"`
	Reviewer        *UserRef   `json:"reviewer,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	EvidenceCount   int        `json:"evidence_count"`
}

// EvidenceKind is the media type of an evidence item.
type EvidenceKind string

const (
	EvidencePhoto EvidenceKind = "FOTO"
	EvidenceVideo EvidenceKind = "VIDEO"
)

// Evidence is a file attached to a complaint.
type Evidence struct {
	ID          int64        `json:"id"`
	ComplaintID int64        `json:"complaint_id"`
	Kind        EvidenceKind `json:"kind"`
	FileName    string       `json:"file_name"`
	URL         string       `json:"url"`
	MimeType    string       `json:"mime_type"`
	SizeBytes   int64        `json:"size_bytes"`
	UploadedAt  time.Time    `json:"uploaded_at"`
}

// Comment is an internal staff comment on a complaint.
type Comment struct {
	ID              int64     `json:"id"`
	AuthorFirstName string    `json:"author_first_name"`
	AuthorLastName  string    `json:"author_last_name"`
	AuthorEmail     string    `json:"author_email"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryAction is one audit entry in a complaint's history.
type HistoryAction struct {
	ID          int64     `json:"id"`
	ActorName   string    `json:"actor_name"`
	ActorEmail  string    `json:"actor_email"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	At          time.Time `json:"at"`
}

// ComplaintPage is one page of complaints as returned by the complaints API.
type ComplaintPage struct {
	Content       []Complaint `json:"content"`
	TotalElements int64       `json:"total_elements"`
	TotalPages    int         `json:"total_pages"`
	CurrentPage   int         `json:"current_page"`
	PageSize      int         `json:"page_size"`
	HasNext       bool        `json:"has_next"`
	HasPrevious   bool        `json:"has_previous"`
}

// ListQuery is the server-side part of a list fetch.
type ListQuery struct {
	Page         int
	Size         int
	Status       Status
	LicensePlate string
	Municipality string
	Order        DateOrder
}

// ComplaintSource fetches and mutates complaints on the complaints API.
type ComplaintSource interface {
	ListComplaints(ctx context.Context, q ListQuery) (*ComplaintPage, error)
	UpdateStatus(ctx context.Context, id int64, status Status, comment string) error
}

// ComplaintDetailSource is the read and mutate surface used by the detail view.
type ComplaintDetailSource interface {
	GetComplaint(ctx context.Context, id int64) (*Complaint, error)
	ListEvidence(ctx context.Context, id int64) ([]Evidence, error)
	ListComments(ctx context.Context, id int64) ([]Comment, error)
	ListHistory(ctx context.Context, id int64) ([]HistoryAction, error)
	AddComment(ctx context.Context, id int64, authorEmail, text string) (*Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
	DeleteComplaint(ctx context.Context, id int64) error
}
