package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldImage       = "image"

	maxTitleLength = 255

	// DefaultMaxImageBytes bounds uploads when Rules leaves the limit unset.
	DefaultMaxImageBytes int64 = 10 << 20
)

// Rules tunes validation limits.
type Rules struct {
	MaxImageBytes int64
}

func (r Rules) maxImageBytes() int64 {
	if r.MaxImageBytes <= 0 {
		return DefaultMaxImageBytes
	}
	return r.MaxImageBytes
}

func (r Rules) imageTooLarge() string {
	return fmt.Sprintf("The image field must not be greater than %d kilobytes.", r.maxImageBytes()/1024)
}

// ImageTooLarge is the validation failure for an upload rejected before it
// could be read in full, e.g. when the request body exceeds its limit.
func ImageTooLarge(rules Rules) *ValidationError {
	var verr ValidationError
	verr.add(fieldImage, rules.imageTooLarge())
	return &verr
}

// ValidateStore checks the fields of a create request. Title is required.
func ValidateStore(raw RawPost, rules Rules) (PostInput, error) {
	return validate(raw, rules, true)
}

// ValidateUpdate checks the fields of an update request. Every field is
// optional, but a title that is sent must not be empty.
func ValidateUpdate(raw RawPost, rules Rules) (PostInput, error) {
	return validate(raw, rules, false)
}

func validate(raw RawPost, rules Rules, titleRequired bool) (PostInput, error) {
	var (
		in   PostInput
		verr ValidationError
	)

	title, hasTitle := raw.Values[fieldTitle]
	title = strings.TrimSpace(title)
	switch {
	case !hasTitle && titleRequired, hasTitle && title == "":
		verr.add(fieldTitle, "The title field is required.")
	case hasTitle && utf8.RuneCountInString(title) > maxTitleLength:
		verr.add(fieldTitle, fmt.Sprintf("The title field must not be greater than %d characters.", maxTitleLength))
	case hasTitle:
		in.Title = &title
	}

	if desc, ok := raw.Values[fieldDescription]; ok {
		desc = strings.TrimSpace(desc)
		in.Description = &desc
	}

	if upload, ok := raw.Files[fieldImage]; ok && !isEmptyUpload(upload) {
		switch {
		case upload.Filename == "" || upload.Content == nil:
			verr.add(fieldImage, "The image field must be a file.")
		case upload.Size > rules.maxImageBytes():
			verr.add(fieldImage, rules.imageTooLarge())
		default:
			in.Image = upload
		}
	} else if v, ok := raw.Values[fieldImage]; ok && strings.TrimSpace(v) != "" {
		verr.add(fieldImage, "The image field must be a file.")
	}

	if len(verr.Fields) > 0 {
		return PostInput{}, &verr
	}
	return in, nil
}

// isEmptyUpload matches the part browsers send for a file input left blank.
func isEmptyUpload(u *Upload) bool {
	return u == nil || (u.Filename == "" && u.Size == 0)
}
