package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/arklim/authflow/internal/core/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

var subjects = map[string]string{
	domain.TemplateVerifyAccount: "Verify Your Email Address",
	domain.TemplateResetPassword: "Reset Your Password",
}

// Render returns the subject and HTML body for a named template.
func Render(name string, data map[string]any) (string, string, error) {
	subject, ok := subjects[name]
	if !ok {
		return "", "", fmt.Errorf("unknown mail template %q", name)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return subject, body.String(), nil
}
