package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes       = 1 << 20
	maxMultipartMemory = 1 << 20
)

type contextKey string

const contextSubjectKey contextKey = "sub"

type ErrorResponse struct {
	Error any `json:"error"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func userIDFromContext(ctx context.Context) (int64, error) {
	subject, ok := ctx.Value(contextSubjectKey).(int64)
	if !ok {
		return 0, errors.New("missing subject")
	}
	if subject < 1 {
		return 0, errors.New("invalid subject")
	}
	return subject, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message any) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeDetail(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, DetailResponse{Detail: detail, Code: code})
}

// readFields returns the named string fields of a JSON, urlencoded or
// multipart request body. Missing fields map to "".
func readFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	fields := make(map[string]string, len(names))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, errors.New("invalid form body")
		}
		for _, name := range names {
			fields[name] = r.PostForm.Get(name)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, errors.New("invalid multipart body")
		}
		for _, name := range names {
			fields[name] = r.PostFormValue(name)
		}
	default:
		raw := map[string]any{}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		// an empty body leaves every field missing
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.New("invalid request")
		}
		for _, name := range names {
			switch v := raw[name].(type) {
			case nil:
				fields[name] = ""
			case string:
				fields[name] = v
			default:
				fields[name] = fmt.Sprint(v)
			}
		}
	}
	return fields, nil
}

func parseID(r *http.Request, param string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", param)
	}
	return id, nil
}
