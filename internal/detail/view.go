// Package detail holds the complaint detail view: one record and its
// evidence, comments and history, each loaded and refreshed independently.
package detail

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Confirmer obtains a yes/no decision from staff.
type Confirmer interface {
	ShowConfirm(ctx context.Context, title, message string) (bool, error)
}

// Section names used in per-section error maps.
const (
	SectionRecord   = "record"
	SectionEvidence = "evidence"
	SectionComments = "comments"
	SectionHistory  = "history"
)

// Snapshot is a copy of the view state.
type Snapshot struct {
	Complaint *domain.Complaint      `json:"complaint"`
	Evidence  []domain.Evidence      `json:"evidence"`
	Comments  []domain.Comment       `json:"comments"`
	History   []domain.HistoryAction `json:"history"`
	Errors    map[string]string      `json:"errors,omitempty"`
	Deleted   bool                   `json:"deleted"`
}

// View is the detail state of one staff session.
type View struct {
	source    domain.ComplaintDetailSource
	confirmer Confirmer
	logger    *slog.Logger

	mu        sync.Mutex
	id        int64
	complaint *domain.Complaint
	evidence  []domain.Evidence
	comments  []domain.Comment
	history   []domain.HistoryAction
	errs      map[string]string
	deleted   bool
}

// New creates an empty view.
func New(source domain.ComplaintDetailSource, confirmer Confirmer, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{source: source, confirmer: confirmer, logger: logger, errs: map[string]string{}}
}

// Load fetches complaint id and its related collections concurrently. A
// failing section is recorded on its own; the others still load. The
// returned error is the record's, or the first auth failure.
func (v *View) Load(ctx context.Context, id int64) error {
	v.mu.Lock()
	if v.id != id {
		v.id = id
		v.complaint = nil
		v.evidence, v.comments, v.history = nil, nil, nil
		v.errs = map[string]string{}
		v.deleted = false
	}
	v.mu.Unlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		recErr  error
		authErr error
	)
	run := func(fn func(context.Context) error, isRecord bool) {
		defer wg.Done()
		err := fn(ctx)
		mu.Lock()
		defer mu.Unlock()
		if isRecord {
			recErr = err
		}
		if err != nil && domain.IsAuth(err) && authErr == nil {
			authErr = err
		}
	}
	wg.Add(4)
	go run(v.refreshRecord, true)
	go run(v.RefreshEvidence, false)
	go run(v.RefreshComments, false)
	go run(v.RefreshHistory, false)
	wg.Wait()

	if authErr != nil {
		return authErr
	}
	return recErr
}

func (v *View) currentID() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.id == 0 {
		return 0, domain.NewAppError(domain.CodeValidation, "No hay una denuncia seleccionada.", nil)
	}
	return v.id, nil
}

// section records the outcome of one section fetch, unless the view moved
// on to another complaint meanwhile.
func (v *View) section(ctx context.Context, id int64, name string, err error, apply func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.id != id {
		return nil
	}
	if err != nil {
		v.errs[name] = domain.UserMessage(err)
		v.logger.WarnContext(ctx, "complaint detail section failed",
			slog.Int64("complaint_id", id), slog.String("section", name), slog.String("error", err.Error()))
		return err
	}
	delete(v.errs, name)
	apply()
	return nil
}

func (v *View) refreshRecord(ctx context.Context) error {
	id, err := v.currentID()
	if err != nil {
		return err
	}
	rec, err := v.source.GetComplaint(ctx, id)
	return v.section(ctx, id, SectionRecord, err, func() { v.complaint = rec })
}

// RefreshEvidence reloads the evidence list.
func (v *View) RefreshEvidence(ctx context.Context) error {
	id, err := v.currentID()
	if err != nil {
		return err
	}
	items, err := v.source.ListEvidence(ctx, id)
	return v.section(ctx, id, SectionEvidence, err, func() { v.evidence = items })
}

// RefreshComments reloads the internal comments.
func (v *View) RefreshComments(ctx context.Context) error {
	id, err := v.currentID()
	if err != nil {
		return err
	}
	items, err := v.source.ListComments(ctx, id)
	return v.section(ctx, id, SectionComments, err, func() { v.comments = items })
}

// RefreshHistory reloads the audit history.
func (v *View) RefreshHistory(ctx context.Context) error {
	id, err := v.currentID()
	if err != nil {
		return err
	}
	items, err := v.source.ListHistory(ctx, id)
	return v.section(ctx, id, SectionHistory, err, func() { v.history = items })
}

// AddComment posts an internal comment. Blank text is rejected before any
// network call.
func (v *View) AddComment(ctx context.Context, authorEmail, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.NewAppError(domain.CodeValidation, "El comentario no puede estar vacío.", nil)
	}
	if strings.TrimSpace(authorEmail) == "" {
		return domain.NewAppError(domain.CodeValidation, "Falta el correo del autor del comentario.", nil)
	}
	id, err := v.currentID()
	if err != nil {
		return err
	}
	if _, err := v.source.AddComment(ctx, id, authorEmail, text); err != nil {
		return err
	}
	// The API does not always echo the stored comment; reload for ids and timestamps.
	if err := v.RefreshComments(ctx); err != nil {
		return err
	}
	return v.RefreshHistory(ctx)
}

// CheckComment returns a not-found error unless commentID is among the
// loaded comments.
func (v *View) CheckComment(commentID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if slices.ContainsFunc(v.comments, func(c domain.Comment) bool { return c.ID == commentID }) {
		return nil
	}
	return domain.NewAppError(domain.CodeNotFound,
		fmt.Sprintf("El comentario #%d no pertenece a la denuncia en pantalla.", commentID), nil)
}

// DeleteComment removes an internal comment of the complaint on display
// after staff confirm.
func (v *View) DeleteComment(ctx context.Context, commentID int64) error {
	if _, err := v.currentID(); err != nil {
		return err
	}
	if err := v.CheckComment(commentID); err != nil {
		return err
	}
	ok, err := v.confirmer.ShowConfirm(ctx, "Eliminar comentario", "¿Está seguro de eliminar este comentario?")
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCancelled
	}
	if err := v.source.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	v.mu.Lock()
	v.comments = slices.DeleteFunc(slices.Clone(v.comments), func(c domain.Comment) bool { return c.ID == commentID })
	v.mu.Unlock()
	return nil
}

// DeleteComplaint removes the complaint after staff confirm.
func (v *View) DeleteComplaint(ctx context.Context) error {
	id, err := v.currentID()
	if err != nil {
		return err
	}
	ok, err := v.confirmer.ShowConfirm(ctx, "Eliminar denuncia",
		fmt.Sprintf("¿Está seguro de eliminar la denuncia #%d? Esta acción no se puede deshacer y se eliminarán también sus evidencias.", id))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCancelled
	}
	if err := v.source.DeleteComplaint(ctx, id); err != nil {
		return err
	}
	v.mu.Lock()
	if v.id == id {
		v.deleted = true
	}
	v.mu.Unlock()
	v.logger.InfoContext(ctx, "complaint deleted", slog.Int64("complaint_id", id))
	return nil
}

// ID returns the loaded complaint id, zero if none.
func (v *View) ID() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.id
}

// Snapshot returns a copy of the view state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		Evidence: slices.Clone(v.evidence),
		Comments: slices.Clone(v.comments),
		History:  slices.Clone(v.history),
		Deleted:  v.deleted,
	}
	if v.complaint != nil {
		c := *v.complaint
		s.Complaint = &c
	}
	if len(v.errs) > 0 {
		s.Errors = make(map[string]string, len(v.errs))
		for k, e := range v.errs {
			s.Errors[k] = e
		}
	}
	return s
}
