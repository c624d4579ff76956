package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"ledger/internal/backend"
	"ledger/internal/core"
)

// ErrUploadTooLarge is returned when the multipart body exceeds the
// configured transport limit.
var ErrUploadTooLarge = errors.New("upload exceeds request size limit")

// Credentials is a parsed login or register form.
type Credentials struct {
	Email    string
	Password string
}

// PageCommand is a parsed pagination request: either an explicit page or
// a direction.
type PageCommand struct {
	Page int
	Dir  string
}

const (
	DirNext = "next"
	DirPrev = "prev"
)

// ParseCredentials reads email and password from a submitted form. The
// password is taken verbatim.
func ParseCredentials(form url.Values) Credentials {
	return Credentials{
		Email:    sanitizeInput(form.Get("email")),
		Password: form.Get("password"),
	}
}

// ParseCategoryParam maps the "category" form value onto a filter. Empty
// and "All" mean unfiltered.
func ParseCategoryParam(form url.Values) (*core.Category, error) {
	raw := sanitizeInput(form.Get("category"))
	if raw == "" || strings.EqualFold(raw, "all") {
		return nil, nil
	}
	c, err := core.ParseCategory(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ParsePageCommand reads "page" or "dir" from form. A page wins over a
// direction when both are present.
func ParsePageCommand(form url.Values) (PageCommand, error) {
	if v := strings.TrimSpace(form.Get("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return PageCommand{}, fmt.Errorf("%w: %q", core.ErrInvalidPage, v)
		}
		return PageCommand{Page: n}, nil
	}
	switch dir := strings.ToLower(strings.TrimSpace(form.Get("dir"))); dir {
	case DirNext, DirPrev:
		return PageCommand{Dir: dir}, nil
	default:
		return PageCommand{}, fmt.Errorf("%w: missing page or direction", core.ErrInvalidPage)
	}
}

// ParseReceiptUpload reads the "file" part of a multipart form. Requests
// larger than maxBytes are refused. A request without a file part, or with
// an empty one, yields an empty receipt, which clears the selection.
func ParseReceiptUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (backend.Receipt, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return backend.Receipt{}, ErrUploadTooLarge
		}
		return backend.Receipt{}, fmt.Errorf("parse multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return backend.Receipt{}, nil
	}
	if err != nil {
		return backend.Receipt{}, fmt.Errorf("read file part: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return backend.Receipt{}, fmt.Errorf("read file part: %w", err)
	}
	if len(data) == 0 && hdr.Filename == "" {
		return backend.Receipt{}, nil
	}
	return backend.Receipt{
		Name:        cleanFileName(hdr.Filename),
		ContentType: partContentType(hdr, data),
		Data:        data,
	}, nil
}

func partContentType(hdr *multipart.FileHeader, data []byte) string {
	if ct := hdr.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}

// cleanFileName keeps only the base name the browser reported.
func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(sanitizeInput(name), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
