package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/andyleap/oidcflow/internal/idp"
	"github.com/andyleap/oidcflow/internal/rp"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Authenticator runs the relying party flow. *rp.Orchestrator implements it.
type Authenticator interface {
	BuildLoginURL(provider idp.Provider) (string, error)
	HandleCallback(ctx context.Context, provider idp.Provider, code string) (*rp.Result, error)
}

type OAuthUIHandlers struct {
	auth      Authenticator
	providers []idp.Descriptor
	templates *template.Template
}

func NewOAuthUIHandlers(auth Authenticator, providers []idp.Descriptor) (*OAuthUIHandlers, error) {
	templates, err := template.New("").Funcs(template.FuncMap{
		"json": prettyJSON,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded templates: %w", err)
	}

	return &OAuthUIHandlers{
		auth:      auth,
		providers: providers,
		templates: templates,
	}, nil
}

// Register mounts the relying party pages on mux.
func (oh *OAuthUIHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", oh.IndexHandler)
	mux.HandleFunc("GET /login/{provider}", oh.LoginHandler)
	mux.HandleFunc("GET /callback/{provider}", oh.CallbackHandler)
}

type providerLink struct {
	Name        string
	DisplayName string
}

// IndexHandler lists a login link per configured provider
// GET /
func (oh *OAuthUIHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	links := make([]providerLink, 0, len(oh.providers))
	for _, d := range oh.providers {
		links = append(links, providerLink{Name: d.Name(), DisplayName: d.Provider.DisplayName()})
	}
	oh.render(w, http.StatusOK, "index.html", struct{ Providers []providerLink }{links})
}

// LoginHandler redirects the browser to the provider's authorization endpoint
// GET /login/{provider}
func (oh *OAuthUIHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	provider, err := idp.ParseProvider(r.PathValue("provider"))
	if err != nil {
		oh.renderErrorPage(w, http.StatusBadRequest, "Unknown Provider", "Unsupported identity provider")
		return
	}

	loginURL, err := oh.auth.BuildLoginURL(provider)
	if err != nil {
		oh.renderErrorPage(w, http.StatusBadRequest, "Unknown Provider", provider.DisplayName()+" is not configured")
		return
	}

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// CallbackHandler completes the flow and renders what was learned
// GET /callback/{provider}?code=...
func (oh *OAuthUIHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	provider, err := idp.ParseProvider(r.PathValue("provider"))
	if err != nil {
		oh.renderErrorPage(w, http.StatusBadRequest, "Unknown Provider", "Unsupported identity provider")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		slog.Warn("Provider returned an error", "provider", provider.String(), "error", e, "description", q.Get("error_description"))
		msg := e
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		oh.renderErrorPage(w, http.StatusBadRequest, "Login Failed", msg)
		return
	}

	code := q.Get("code")
	if code == "" {
		oh.renderErrorPage(w, http.StatusBadRequest, "Invalid Request", "Missing authorization code")
		return
	}

	result, err := oh.auth.HandleCallback(r.Context(), provider, code)
	if err != nil {
		if errors.Is(err, idp.ErrUnsupportedProvider) {
			oh.renderErrorPage(w, http.StatusBadRequest, "Unknown Provider", provider.DisplayName()+" is not configured")
			return
		}
		slog.Error("Callback failed", "provider", provider.String(), "error", err)
		oh.renderErrorPage(w, http.StatusInternalServerError, "Authentication Failed", "Authentication failed")
		return
	}

	oh.render(w, http.StatusOK, "callback.html", newCallbackView(result))
}

type callbackView struct {
	Provider    string
	Subject     string
	TokenType   string
	Expiry      string
	IDToken     string
	IDHeader    map[string]any
	IDClaims    map[string]any
	AccessToken string
	Opaque      bool
	// AccessHeader is nil for opaque tokens.
	AccessHeader map[string]any
	AccessClaims map[string]any
	Profile      map[string]any
	ProfileError string
}

func newCallbackView(res *rp.Result) callbackView {
	v := callbackView{
		Provider:     res.Provider.DisplayName(),
		Subject:      res.Subject,
		TokenType:    res.TokenType,
		IDToken:      res.IDToken,
		IDHeader:     res.IDTokenHeader,
		IDClaims:     res.IDTokenClaims,
		AccessToken:  res.AccessToken,
		Opaque:       res.AccessTokenFormat == idp.Opaque,
		AccessHeader: res.AccessTokenHeader,
		AccessClaims: res.AccessTokenClaims,
		Profile:      res.Profile,
	}
	if !res.Expiry.IsZero() {
		v.Expiry = res.Expiry.UTC().Format(time.RFC3339)
	}
	if res.ProfileError != nil {
		v.ProfileError = res.ProfileError.Error()
	}
	return v
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func (oh *OAuthUIHandlers) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := oh.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Failed to render template", "template", name, "error", err)
	}
}

func (oh *OAuthUIHandlers) renderErrorPage(w http.ResponseWriter, status int, title, message string) {
	data := struct {
		Title   string
		Message string
	}{
		Title:   title,
		Message: message,
	}
	oh.render(w, status, "error.html", data)
}
