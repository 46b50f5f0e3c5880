package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// wireTimeLayouts are tried in order. The API sends local date-times
// without a zone; those are read as UTC.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// wireTime accepts ISO strings and the [y,m,d,h,mi,s,ns] array form.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		var parts []int
		if err := json.Unmarshal(b, &parts); err != nil {
			return fmt.Errorf("date-time array: %w", err)
		}
		if len(parts) < 3 {
			return fmt.Errorf("date-time array has %d parts", len(parts))
		}
		for len(parts) < 7 {
			parts = append(parts, 0)
		}
		t.Time = time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6], time.UTC)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date-time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range wireTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported date-time %q", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type wireUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
	Email    string `json:"email"`
}

func (u *wireUser) toDomain() *domain.UserRef {
	if u == nil {
		return nil
	}
	return &domain.UserRef{ID: u.ID, Username: u.Username, Name: u.Nombre, Email: u.Email}
}

type wireCategory struct {
	ID       int64  `json:"id"`
	Nombre   string `json:"nombre"`
	Codigo   string `json:"codigo"`
	ColorHex string `json:"colorHex"`
}

type wireComplaint struct {
	ID                 int64         `json:"id"`
	Usuario            *wireUser     `json:"usuario"`
	Categoria          *wireCategory `json:"categoria"`
	CategoriaNombre    string        `json:"categoriaNombre"`
	Descripcion        string        `json:"descripcion"`
	Patente            string        `json:"patente"`
	Latitud            float64       `json:"latitud"`
	Longitud           float64       `json:"longitud"`
	Direccion          string        `json:"direccion"`
	Sector             string        `json:"sector"`
	Comuna             string        `json:"comuna"`
	Estado             string        `json:"estado"`
	FechaDenuncia      wireTime      `json:"fechaDenuncia"`
	FechaValidacion    *wireTime     `json:"fechaValidacion"`
	Revisor            *wireUser     `json:"revisor"`
	MotivoRechazo      string        `json:"motivoRechazo"`
	CantidadEvidencias int           `json:"cantidadEvidencias"`
}

func (w wireComplaint) toDomain() (domain.Complaint, error) {
	status, err := domain.ParseStatus(w.Estado)
	if err != nil {
		return domain.Complaint{}, unrecognized(fmt.Sprintf("complaint %d has status %q", w.ID, w.Estado), err)
	}
	c := domain.Complaint{
		ID:              w.ID,
		LicensePlate:    w.Patente,
		Municipality:    w.Comuna,
		Sector:          w.Sector,
		Description:     w.Descripcion,
		Latitude:        w.Latitud,
		Longitude:       w.Longitud,
		Address:         w.Direccion,
		Status:          status,
		SubmittedAt:     w.FechaDenuncia.Time,
		ValidatedAt:     w.FechaValidacion.ptr(),
		Reporter:        w.Usuario.toDomain(),
		Reviewer:        w.Revisor.toDomain(),
		RejectionReason: w.MotivoRechazo,
		EvidenceCount:   w.CantidadEvidencias,
	}
	if w.Categoria != nil {
		c.Category = domain.Category{ID: w.Categoria.ID, Name: w.Categoria.Nombre, Code: w.Categoria.Codigo, ColorHex: w.Categoria.ColorHex}
	} else {
		c.Category.Name = w.CategoriaNombre
	}
	return c, nil
}

// complaintsToDomain converts a page of rows, setting aside the ones that
// cannot be read. Only a page with no readable row at all is an error.
func complaintsToDomain(in []wireComplaint) (out []domain.Complaint, skipped []error, err error) {
	out = make([]domain.Complaint, 0, len(in))
	for _, w := range in {
		c, rowErr := w.toDomain()
		if rowErr != nil {
			skipped = append(skipped, rowErr)
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 && len(skipped) > 0 {
		return nil, skipped, skipped[0]
	}
	return out, skipped, nil
}

type wireEvidence struct {
	ID            int64    `json:"id"`
	DenunciaID    int64    `json:"denunciaId"`
	Tipo          string   `json:"tipo"`
	NombreArchivo string   `json:"nombreArchivo"`
	URL           string   `json:"url"`
	MimeType      string   `json:"mimeType"`
	TamanoBytes   int64    `json:"tamanoBytes"`
	FechaSubida   wireTime `json:"fechaSubida"`
}

func (w wireEvidence) toDomain() domain.Evidence {
	return domain.Evidence{
		ID:          w.ID,
		ComplaintID: w.DenunciaID,
		Kind:        domain.EvidenceKind(strings.ToUpper(w.Tipo)),
		FileName:    w.NombreArchivo,
		URL:         w.URL,
		MimeType:    w.MimeType,
		SizeBytes:   w.TamanoBytes,
		UploadedAt:  w.FechaSubida.Time,
	}
}

type wireComment struct {
	ID              int64    `json:"id"`
	NombreUsuario   string   `json:"nombreUsuario"`
	ApellidoUsuario string   `json:"apellidoUsuario"`
	EmailUsuario    string   `json:"emailUsuario"`
	Comentario      string   `json:"comentario"`
	FechaComentario wireTime `json:"fechaComentario"`
}

func (w wireComment) toDomain() domain.Comment {
	return domain.Comment{
		ID:              w.ID,
		AuthorFirstName: w.NombreUsuario,
		AuthorLastName:  w.ApellidoUsuario,
		AuthorEmail:     w.EmailUsuario,
		Text:            w.Comentario,
		CreatedAt:       w.FechaComentario.Time,
	}
}

type wireHistory struct {
	ID            int64    `json:"id"`
	NombreUsuario string   `json:"nombreUsuario"`
	EmailUsuario  string   `json:"emailUsuario"`
	TipoAccion    string   `json:"tipoAccion"`
	Descripcion   string   `json:"descripcion"`
	FechaAccion   wireTime `json:"fechaAccion"`
}

func (w wireHistory) toDomain() domain.HistoryAction {
	return domain.HistoryAction{
		ID:          w.ID,
		ActorName:   w.NombreUsuario,
		ActorEmail:  w.EmailUsuario,
		Action:      w.TipoAccion,
		Description: w.Descripcion,
		At:          w.FechaAccion.Time,
	}
}

type wireStats struct {
	TotalDenuncias           int64            `json:"totalDenuncias"`
	DenunciasPorMes          map[string]int64 `json:"denunciasPorMes"`
	DenunciasPorCategoria    map[string]int64 `json:"denunciasPorCategoria"`
	DenunciasPorEstado       map[string]int64 `json:"denunciasPorEstado"`
	DenunciasPorHorario      map[string]int64 `json:"denunciasPorHorario"`
	DenunciasPorComuna       map[string]int64 `json:"denunciasPorComuna"`
	DenunciasPorSector       map[string]int64 `json:"denunciasPorSector"`
	TopUsuarios              map[string]int64 `json:"topUsuarios"`
	ReincidenciaPatentes     map[string]int64 `json:"reincidenciaPatentes"`
	TasaValidacion           float64          `json:"tasaValidacion"`
	TasaRechazo              float64          `json:"tasaRechazo"`
	TiempoPromedioValidacion float64          `json:"tiempoPromedioValidacion"`
}

func (w wireStats) toDomain(now time.Time) (*domain.DashboardStats, error) {
	byHour := make(map[int]int64, len(w.DenunciasPorHorario))
	for k, v := range w.DenunciasPorHorario {
		h, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || h < 0 || h > 23 {
			return nil, unrecognized(fmt.Sprintf("hour bucket %q", k), err)
		}
		byHour[h] += v
	}
	return &domain.DashboardStats{
		Total:              w.TotalDenuncias,
		ByMonth:            w.DenunciasPorMes,
		ByCategory:         w.DenunciasPorCategoria,
		ByStatus:           w.DenunciasPorEstado,
		ByHour:             byHour,
		ByMunicipality:     w.DenunciasPorComuna,
		BySector:           w.DenunciasPorSector,
		TopReporters:       w.TopUsuarios,
		RepeatPlates:       w.ReincidenciaPatentes,
		ValidationRate:     w.TasaValidacion,
		RejectionRate:      w.TasaRechazo,
		AvgValidationHours: w.TiempoPromedioValidacion,
		GeneratedAt:        now,
	}, nil
}

type wireLogin struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Nombre   string `json:"nombre"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Token    string
	Email    string
	Username string
	Name     string
}
