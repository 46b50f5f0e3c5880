package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

var (
	_ domain.ComplaintSource       = (*Client)(nil)
	_ domain.ComplaintDetailSource = (*Client)(nil)
)

// Login exchanges staff credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	p, err := c.call(ctx, "login", http.MethodPost, "/users/login", nil, body)
	if err != nil {
		return nil, err
	}
	if err := p.Expect(KindAuth); err != nil {
		return nil, err
	}
	var w wireLogin
	if err := p.Decode(&w); err != nil {
		return nil, err
	}
	if strings.TrimSpace(w.Token) == "" {
		return nil, domain.NewAppError(domain.CodeUnauthorized, orDefault(w.Message, "Credenciales inválidas."), nil)
	}
	return &LoginResult{Token: w.Token, Email: w.Email, Username: w.Username, Name: w.Nombre}, nil
}

// ListComplaints fetches one page of complaints.
func (c *Client) ListComplaints(ctx context.Context, q domain.ListQuery) (*domain.ComplaintPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("size", strconv.Itoa(q.Size))
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	if q.LicensePlate != "" {
		params.Set("licensePlate", q.LicensePlate)
	}
	if q.Municipality != "" {
		params.Set("municipality", q.Municipality)
	}
	if q.Order == domain.OrderOldest {
		params.Set("sort", "fechaDenuncia,asc")
	} else {
		params.Set("sort", "fechaDenuncia,desc")
	}

	p, err := c.call(ctx, "list_complaints", http.MethodGet, "/complaints", params, nil)
	if err != nil {
		return nil, err
	}
	meta, err := p.page()
	if err != nil {
		return nil, err
	}
	var rows []wireComplaint
	if !isNull(meta.Content) {
		if err := (Payload{Kind: KindList, Body: meta.Content}).Decode(&rows); err != nil {
			return nil, err
		}
	}
	content, skipped, err := complaintsToDomain(rows)
	for _, rowErr := range skipped {
		c.logger.WarnContext(ctx, "complaint row skipped",
			slog.String("operation", "list_complaints"),
			slog.String("error", rowErr.Error()),
		)
	}
	if err != nil {
		return nil, err
	}

	page := &domain.ComplaintPage{
		Content:       content,
		TotalElements: meta.TotalElements,
		TotalPages:    meta.TotalPages,
		CurrentPage:   q.Page,
		PageSize:      q.Size,
		HasNext:       meta.HasNext,
		HasPrevious:   meta.HasPrevious,
	}
	switch {
	case meta.CurrentPage != nil:
		page.CurrentPage = *meta.CurrentPage
	case meta.Number != nil:
		page.CurrentPage = *meta.Number
	}
	switch {
	case meta.PageSize != nil:
		page.PageSize = *meta.PageSize
	case meta.Size != nil:
		page.PageSize = *meta.Size
	}
	return page, nil
}

// GetComplaint fetches one complaint.
func (c *Client) GetComplaint(ctx context.Context, id int64) (*domain.Complaint, error) {
	p, err := c.call(ctx, "get_complaint", http.MethodGet, complaintPath(id, ""), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := p.Expect(KindRecord); err != nil {
		return nil, err
	}
	var w wireComplaint
	if err := p.Decode(&w); err != nil {
		return nil, err
	}
	rec, err := w.toDomain()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEvidence fetches the evidence files of a complaint.
func (c *Client) ListEvidence(ctx context.Context, id int64) ([]domain.Evidence, error) {
	var rows []wireEvidence
	if err := c.list(ctx, "list_evidence", complaintPath(id, "/evidence"), &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Evidence, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListComments fetches the internal comments of a complaint.
func (c *Client) ListComments(ctx context.Context, id int64) ([]domain.Comment, error) {
	var rows []wireComment
	if err := c.list(ctx, "list_comments", complaintPath(id, "/comments"), &rows); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListHistory fetches the audit history of a complaint.
func (c *Client) ListHistory(ctx context.Context, id int64) ([]domain.HistoryAction, error) {
	var rows []wireHistory
	if err := c.list(ctx, "list_history", complaintPath(id, "/history"), &rows); err != nil {
		return nil, err
	}
	out := make([]domain.HistoryAction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (c *Client) list(ctx context.Context, op, path string, dst any) error {
	p, err := c.call(ctx, op, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if err := p.Expect(KindList); err != nil {
		return err
	}
	return p.Decode(dst)
}

// UpdateStatus moves a complaint to status. comment is optional except for
// rejections, where the API requires it.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status domain.Status, comment string) error {
	body := struct {
		Status  domain.Status `json:"status"`
		Comment string        `json:"comment,omitempty"`
	}{status, comment}
	p, err := c.call(ctx, "update_status", http.MethodPut, complaintPath(id, "/status"), nil, body)
	if err != nil {
		return err
	}
	return p.Expect(KindAck, KindRecord)
}

// AddComment posts an internal comment. The API may answer with the stored
// comment or a bare acknowledgement; in the latter case nil is returned.
func (c *Client) AddComment(ctx context.Context, id int64, authorEmail, text string) (*domain.Comment, error) {
	body := struct {
		AuthorEmail string `json:"authorEmail"`
		Text        string `json:"text"`
	}{authorEmail, text}
	p, err := c.call(ctx, "add_comment", http.MethodPost, complaintPath(id, "/comments"), nil, body)
	if err != nil {
		return nil, err
	}
	if err := p.Expect(KindAck, KindRecord); err != nil {
		return nil, err
	}
	if p.Kind == KindAck {
		return nil, nil
	}
	var w wireComment
	if err := p.Decode(&w); err != nil {
		return nil, err
	}
	cm := w.toDomain()
	return &cm, nil
}

// DeleteComplaint removes a complaint.
func (c *Client) DeleteComplaint(ctx context.Context, id int64) error {
	p, err := c.call(ctx, "delete_complaint", http.MethodDelete, complaintPath(id, ""), nil, nil)
	if err != nil {
		return err
	}
	return p.Expect(KindAck)
}

// DeleteComment removes an internal comment.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	p, err := c.call(ctx, "delete_comment", http.MethodDelete, fmt.Sprintf("/comments/%d", commentID), nil, nil)
	if err != nil {
		return err
	}
	return p.Expect(KindAck)
}

// Stats fetches the aggregate dashboard statistics.
func (c *Client) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	p, err := c.call(ctx, "stats", http.MethodGet, "/complaints/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := p.Expect(KindRecord); err != nil {
		return nil, err
	}
	var w wireStats
	if err := p.Decode(&w); err != nil {
		return nil, err
	}
	return w.toDomain(c.now())
}

func complaintPath(id int64, suffix string) string {
	return "/complaints/" + strconv.FormatInt(id, 10) + suffix
}
