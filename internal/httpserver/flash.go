package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const (
	flashCookie = "flash"
	flashMaxAge = 60
)

// flash carries the outcome of a page action across its redirect: a status
// line, or validation errors plus the input that caused them.
type flash struct {
	Status string              `json:"status,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
	Old    map[string]string   `json:"old,omitempty"`
}

func setFlash(w http.ResponseWriter, f flash) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeFlash reads and clears the flash cookie. A missing or mangled cookie
// yields an empty flash.
func takeFlash(w http.ResponseWriter, r *http.Request) flash {
	var f flash
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return f
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return flash{}
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return flash{}
	}
	return f
}
