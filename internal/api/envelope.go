package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/simp-lee/denuncias-admin/internal/domain"
)

// Kind is the shape of a decoded complaints API payload.
type Kind int

const (
	KindUnknown Kind = iota
	KindPage
	KindRecord
	KindList
	KindAck
	KindAuth
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindPage:
		return "page"
	case KindRecord:
		return "record"
	case KindList:
		return "list"
	case KindAck:
		return "ack"
	case KindAuth:
		return "auth"
	case KindError:
		return "error"
	}
	return "unknown"
}

// wrapperKeys are the keys under which the API nests a record or a list
// next to a success flag.
var wrapperKeys = []string{"denuncia", "comentario", "data", "estadisticas", "denuncias", "comentarios"}

// Payload is a classified response body. Body holds the part relevant to
// Kind: the page object, the record object, the list array, or the full
// object for ack, auth and error payloads.
type Payload struct {
	Kind    Kind
	Body    json.RawMessage
	Success bool
	Message string
}

type pageMeta struct {
	Content       json.RawMessage `json:"content"`
	TotalElements int64           `json:"totalElements"`
	TotalPages    int             `json:"totalPages"`
	CurrentPage   *int            `json:"currentPage"`
	Number        *int            `json:"number"`
	PageSize      *int            `json:"pageSize"`
	Size          *int            `json:"size"`
	HasNext       bool            `json:"hasNext"`
	HasPrevious   bool            `json:"hasPrevious"`
}

// Classify sorts raw into one of the known payload shapes. Anything else is
// an unrecognized-payload error; fields are never probed ad hoc by callers.
func Classify(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{Kind: KindAck, Success: true}, nil
	}
	switch raw[0] {
	case '[':
		return Payload{Kind: KindList, Body: raw, Success: true}, nil
	case '{':
	default:
		return Payload{}, unrecognized("non-object payload", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, unrecognized("malformed JSON", err)
	}

	var p Payload
	if v, ok := fields["message"]; ok {
		_ = json.Unmarshal(v, &p.Message)
	}
	if p.Message == "" {
		if v, ok := fields["error"]; ok {
			_ = json.Unmarshal(v, &p.Message)
		}
	}

	success, hasSuccess := boolField(fields, "success")
	switch {
	case hasSuccess && !success:
		p.Kind = KindError
		p.Body = raw
		return p, nil
	case has(fields, "content") && has(fields, "totalElements"):
		p.Kind = KindPage
		p.Body = raw
		p.Success = true
		return p, nil
	case has(fields, "token"):
		p.Kind = KindAuth
		p.Body = raw
		p.Success = true
		return p, nil
	case hasSuccess:
		p.Success = true
		for _, key := range wrapperKeys {
			inner, ok := fields[key]
			if !ok || isNull(inner) {
				continue
			}
			inner = bytes.TrimSpace(inner)
			switch inner[0] {
			case '[':
				p.Kind = KindList
			case '{':
				p.Kind = KindRecord
			default:
				return Payload{}, unrecognized(fmt.Sprintf("wrapped %q is not an object or array", key), nil)
			}
			p.Body = inner
			return p, nil
		}
		p.Kind = KindAck
		p.Body = raw
		return p, nil
	case has(fields, "id") || has(fields, "totalDenuncias"):
		p.Kind = KindRecord
		p.Body = raw
		p.Success = true
		return p, nil
	case has(fields, "error") || (has(fields, "status") && has(fields, "path")):
		p.Kind = KindError
		p.Body = raw
		return p, nil
	}
	return Payload{}, unrecognized("object matches no known shape", nil)
}

// Expect returns an unrecognized-payload error unless p is one of kinds.
func (p Payload) Expect(kinds ...Kind) error {
	for _, k := range kinds {
		if p.Kind == k {
			return nil
		}
	}
	return unrecognized(fmt.Sprintf("unexpected %s payload", p.Kind), nil)
}

// Decode unmarshals the relevant body into dst.
func (p Payload) Decode(dst any) error {
	if err := json.Unmarshal(p.Body, dst); err != nil {
		return unrecognized(fmt.Sprintf("decode %s payload", p.Kind), err)
	}
	return nil
}

func (p Payload) page() (pageMeta, error) {
	var meta pageMeta
	if err := p.Expect(KindPage); err != nil {
		return meta, err
	}
	if err := p.Decode(&meta); err != nil {
		return meta, err
	}
	return meta, nil
}

func unrecognized(msg string, err error) error {
	cause := errors.New(msg)
	if err != nil {
		cause = fmt.Errorf("%s: %w", msg, err)
	}
	return domain.NewAppError(domain.CodeUnrecognized, "Respuesta no reconocida del servicio de denuncias.", cause)
}

func has(fields map[string]json.RawMessage, key string) bool {
	_, ok := fields[key]
	return ok
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func boolField(fields map[string]json.RawMessage, key string) (value, ok bool) {
	raw, present := fields[key]
	if !present {
		return false, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, false
	}
	return value, true
}
