package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/blackmichael/postboard/internal/domain"
)

const (
	// formOverhead is the body allowance beyond the image limit for the
	// remaining fields and multipart framing.
	formOverhead = 1 << 20

	// multipartMemory is how much of a multipart body is held in memory
	// before parts spill to temp files.
	multipartMemory = 1 << 20

	methodField = "_method"
)

// postFields are the request keys the post service understands.
var postFields = []string{"title", "description", "image", methodField}

// errUnsupportedMedia is returned for bodies that are neither a form nor JSON.
var errUnsupportedMedia = errors.New("unsupported content type")

// decodedRequest is a parsed create or update body.
type decodedRequest struct {
	raw     domain.RawPost
	method  string
	cleanup func()
}

// decodePostRequest reads title, description and image from a multipart,
// urlencoded or JSON body. The caller must call cleanup once the request is
// handled. An oversized body is reported as an image validation failure.
func decodePostRequest(w http.ResponseWriter, r *http.Request, rules domain.Rules) (*decodedRequest, error) {
	limit := rules.MaxImageBytes
	if limit <= 0 {
		limit = domain.DefaultMaxImageBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		d   *decodedRequest
		err error
	)
	switch mediaType {
	case "multipart/form-data":
		d, err = decodeMultipart(r)
	case "application/x-www-form-urlencoded":
		d, err = decodeURLEncoded(r)
	case "application/json":
		d, err = decodeJSON(r)
	case "":
		// A bodiless PATCH changes nothing; treat it as an empty form.
		d = &decodedRequest{raw: emptyRaw(), cleanup: func() {}}
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedMedia, mediaType)
	}

	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, domain.ImageTooLarge(rules)
		}
		return nil, err
	}

	d.method = strings.ToUpper(d.raw.Values[methodField])
	delete(d.raw.Values, methodField)
	return d, nil
}

func emptyRaw() domain.RawPost {
	return domain.RawPost{
		Values: make(map[string]string),
		Files:  make(map[string]*domain.Upload),
	}
}

func decodeMultipart(r *http.Request) (*decodedRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	form := r.MultipartForm

	raw := emptyRaw()
	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		form.RemoveAll()
	}

	for _, key := range postFields {
		if vals, ok := form.Value[key]; ok && len(vals) > 0 {
			raw.Values[key] = vals[0]
		}
		headers, ok := form.File[key]
		if !ok || len(headers) == 0 {
			continue
		}
		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open upload %s: %w", key, err)
		}
		opened = append(opened, f)
		raw.Files[key] = &domain.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		}
	}

	return &decodedRequest{raw: raw, cleanup: cleanup}, nil
}

func decodeURLEncoded(r *http.Request) (*decodedRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	raw := emptyRaw()
	for _, key := range postFields {
		if vals, ok := r.PostForm[key]; ok && len(vals) > 0 {
			raw.Values[key] = vals[0]
		}
	}
	return &decodedRequest{raw: raw, cleanup: func() {}}, nil
}

// decodeJSON accepts string values for every field; null counts as an empty
// string. A non-string image can never be a file and fails validation.
func decodeJSON(r *http.Request) (*decodedRequest, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json body: %w", err)
	}

	raw := emptyRaw()
	for _, key := range postFields {
		msg, ok := body[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			if key == "image" {
				raw.Values[key] = string(msg)
				continue
			}
			return nil, &domain.ValidationError{Fields: map[string][]string{
				key: {fmt.Sprintf("The %s field must be a string.", key)},
			}}
		}
		raw.Values[key] = s
	}
	return &decodedRequest{raw: raw, cleanup: func() {}}, nil
}
