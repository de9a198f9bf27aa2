package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/Shivanand-hulikatti/carnival-tickets/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageDashboard = "dashboard.html"
	pageBook      = "book.html"
	pageBookings  = "bookings.html"
	pageLogin     = "login.html"
	pageRegister  = "register.html"
)

var funcs = template.FuncMap{
	"money": func(v int64) string { return fmt.Sprintf("₹%d", v) },
	"when":  func(t time.Time) string { return t.Local().Format("02 Jan 2006, 03:04 PM") },
}

// pages holds one template set per page, each sharing layout.html.
type pages struct {
	sets map[string]*template.Template
}

func loadPages() (*pages, error) {
	p := &pages{sets: make(map[string]*template.Template)}
	for _, name := range []string{pageDashboard, pageBook, pageBookings, pageLogin, pageRegister} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		p.sets[name] = t
	}
	return p, nil
}

// pageData is the single view model every page renders from.
type pageData struct {
	Title    string
	User     *model.User
	Flash    *flash
	Catalog  *model.Catalog
	Stats    *model.Stats
	Ride     *model.Ride
	Bookings []model.Booking
}

// render executes the page into a buffer first so a template error never
// leaves a half-written response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	data.User = UserFrom(r.Context())
	data.Flash = popFlash(w, r)

	var buf bytes.Buffer
	if err := h.pages.sets[name].Execute(&buf, data); err != nil {
		h.logger.Error("render page", "page", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
