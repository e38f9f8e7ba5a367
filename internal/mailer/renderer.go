// Package mailer renders summary emails from stored templates and
// delivers them over SMTP.
package mailer

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
)

// TemplateError reports a template that failed to parse. Parse failures
// are fatal for a run because every recipient would hit the same error.
type TemplateError struct {
	Field string
	Err   error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("parsing %s template: %v", e.Field, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// View is the data passed to subject and body templates.
type View struct {
	User            ViewUser
	Instances       []domain.InstanceForUser
	InstanceCount   int
	Overdue         []domain.InstanceForUser
	OverdueCount    int
	NotOverdue      []domain.InstanceForUser
	NotOverdueCount int
	Report          domain.ReportDefinition
	Tenant          domain.Tenant
	Now             time.Time
	Timezone        string
}

// ViewUser is the recipient as seen by templates.
type ViewUser struct {
	DisplayName string
	Email       string
}

// Renderer renders a subject and HTML body for one recipient.
type Renderer struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
	now     func() time.Time
}

func templateFuncs() map[string]interface{} {
	return map[string]interface{}{
		"formatDate":     formatDate,
		"formatDateTime": formatDateTime,
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

// NewRenderer parses the subject and body sources. The subject is plain
// text; the body is HTML with auto-escaping.
func NewRenderer(subjectSrc, bodySrc string) (*Renderer, error) {
	subject, err := texttemplate.New("subject").Funcs(templateFuncs()).Parse(subjectSrc)
	if err != nil {
		return nil, &TemplateError{Field: "subject", Err: err}
	}
	body, err := htmltemplate.New("body").Funcs(templateFuncs()).Parse(bodySrc)
	if err != nil {
		return nil, &TemplateError{Field: "body", Err: err}
	}
	return &Renderer{subject: subject, body: body, now: time.Now}, nil
}

// Render produces the subject and HTML body for one recipient's instances.
func (r *Renderer) Render(user ViewUser, instances []domain.InstanceForUser, report domain.ReportDefinition, tenant domain.Tenant) (string, string, error) {
	var overdue, notOverdue []domain.InstanceForUser
	for _, inst := range instances {
		if inst.Overdue {
			overdue = append(overdue, inst)
		} else {
			notOverdue = append(notOverdue, inst)
		}
	}

	now := r.now()
	zone, _ := now.Zone()
	view := View{
		User:            user,
		Instances:       instances,
		InstanceCount:   len(instances),
		Overdue:         overdue,
		OverdueCount:    len(overdue),
		NotOverdue:      notOverdue,
		NotOverdueCount: len(notOverdue),
		Report:          report,
		Tenant:          tenant,
		Now:             now,
		Timezone:        zone,
	}

	var subjectBuf strings.Builder
	if err := r.subject.Execute(&subjectBuf, view); err != nil {
		return "", "", fmt.Errorf("rendering subject for %s: %w", user.Email, err)
	}
	var bodyBuf strings.Builder
	if err := r.body.Execute(&bodyBuf, view); err != nil {
		return "", "", fmt.Errorf("rendering body for %s: %w", user.Email, err)
	}
	// Subjects must be a single header line
	subject := strings.TrimSpace(strings.ReplaceAll(subjectBuf.String(), "\n", " "))
	return subject, bodyBuf.String(), nil
}
