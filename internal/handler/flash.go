package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "carnival_flash"

const (
	flashSuccess = "success"
	flashError   = "error"
)

// flash is a one-shot message shown on the next rendered page.
type flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func setFlash(w http.ResponseWriter, category, message string) {
	data, _ := json.Marshal(flash{Category: category, Message: message})
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash, if any, and clears it.
func popFlash(w http.ResponseWriter, r *http.Request) *flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var f flash
	if err := json.Unmarshal(data, &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}
