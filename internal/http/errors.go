package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Kind clasifica una falla según la taxonomía del sistema.
// La clasificación es explícita por call-site: un upstream caído puede ser
// fatal para un paso crítico e ignorable para uno best-effort.
type Kind int

const (
	KindValidation Kind = iota // input faltante o malformado → 422
	KindNotFound               // entidad inexistente → 404
	KindConflict               // transición de estado ilegal → 409
	KindUpstream               // colaborador caído o sin éxito → 502
)

// Fault es un error tipado con mapeo directo a status HTTP.
type Fault struct {
	Kind Kind
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Msg, f.Err)
	}
	return f.Msg
}

func (f *Fault) Unwrap() error { return f.Err }

// Validation construye una falla de validación (fail-fast, antes de mutar nada).
func Validation(msg string) *Fault { return &Fault{Kind: KindValidation, Msg: msg} }

// NotFound construye una falla 404.
func NotFound(msg string) *Fault { return &Fault{Kind: KindNotFound, Msg: msg} }

// Conflict construye una falla 409 por transición ilegal.
func Conflict(msg string) *Fault { return &Fault{Kind: KindConflict, Msg: msg} }

// Upstream construye una falla 502 por colaborador no disponible.
func Upstream(msg string, err error) *Fault { return &Fault{Kind: KindUpstream, Msg: msg, Err: err} }

func (k Kind) status() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) code() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream_unavailable"
	default:
		return "internal_error"
	}
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteError emite un error JSON con el código y descripción dados.
func WriteError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		RequestID:        rid,
	})
}

// WriteFault mapea un error del dominio a su respuesta HTTP.
// Errores no tipados se reportan como 500 sin detalle interno.
func WriteFault(w http.ResponseWriter, err error) {
	var f *Fault
	if errors.As(err, &f) {
		WriteError(w, f.Kind.status(), f.Kind.code(), f.Msg)
		return
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "error interno")
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON: decodifica JSON de forma tolerante (NO falla por campos desconocidos).
// Valida Content-Type y limita el tamaño del body a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type debe ser application/json")
		return false
	}
	// máx 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "json inválido")
		return false
	}
	return true
}
