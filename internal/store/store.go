// Package store persists tenants, reports, templates and SMTP endpoints
// as YAML files in a single data directory. Records are keyed by integer
// id; each collection is one file, rewritten atomically on change.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docuflow/therenotify/internal/domain"
)

// ErrNotFound is returned when a record id does not exist
var ErrNotFound = errors.New("store: record not found")

const (
	tenantsFile   = "tenants.yaml"
	reportsFile   = "reports.yaml"
	templatesFile = "templates.yaml"
	smtpFile      = "smtp.yaml"
)

// Store is a YAML-file keyed-record store
type Store struct {
	dir string

	mu    sync.Mutex
	cache map[string][]byte

	watcher *watcher
}

// Open creates the data directory if needed and starts watching it for
// external edits, so changes made behind the process's back are picked up
// on the next read.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{
		dir:   dir,
		cache: make(map[string][]byte),
	}
	w, err := newWatcher(dir, s.invalidate)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

// Close stops the directory watcher
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) invalidate(file string) {
	s.mu.Lock()
	delete(s.cache, file)
	s.mu.Unlock()
}

// load reads a collection file into out, going through the byte cache.
// A missing file is an empty collection.
func (s *Store) load(file string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(file, out)
}

func (s *Store) loadLocked(file string, out any) error {
	data, ok := s.cache[file]
	if !ok {
		var err error
		data, err = os.ReadFile(filepath.Join(s.dir, file))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("read %s: %w", file, err)
		}
		s.cache[file] = data
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return nil
}

// saveLocked writes a collection atomically (temp file + rename) and
// refreshes the cache. Callers must hold s.mu.
func (s *Store) saveLocked(file string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", file, err)
	}
	path := filepath.Join(s.dir, file)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	s.cache[file] = data
	return nil
}

// Tenants returns all tenants
func (s *Store) Tenants() ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	if err := s.load(tenantsFile, &tenants); err != nil {
		return nil, err
	}
	return tenants, nil
}

// TenantByID returns one tenant or ErrNotFound
func (s *Store) TenantByID(id int) (domain.Tenant, error) {
	tenants, err := s.Tenants()
	if err != nil {
		return domain.Tenant{}, err
	}
	for _, t := range tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Tenant{}, fmt.Errorf("tenant %d: %w", id, ErrNotFound)
}

// Reports returns all report definitions
func (s *Store) Reports() ([]domain.ReportDefinition, error) {
	var reports []domain.ReportDefinition
	if err := s.load(reportsFile, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// ReportByID returns one report or ErrNotFound
func (s *Store) ReportByID(id int) (domain.ReportDefinition, error) {
	reports, err := s.Reports()
	if err != nil {
		return domain.ReportDefinition{}, err
	}
	for _, r := range reports {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ReportDefinition{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
}

// EnabledReports returns the reports the scheduler should consider
func (s *Store) EnabledReports() ([]domain.ReportDefinition, error) {
	reports, err := s.Reports()
	if err != nil {
		return nil, err
	}
	enabled := reports[:0]
	for _, r := range reports {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

// SaveReport inserts or replaces a report definition by id
func (s *Store) SaveReport(report domain.ReportDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reports []domain.ReportDefinition
	if err := s.loadLocked(reportsFile, &reports); err != nil {
		return err
	}
	report.UpdatedAt = time.Now().UTC()
	replaced := false
	for i, r := range reports {
		if r.ID == report.ID {
			reports[i] = report
			replaced = true
			break
		}
	}
	if !replaced {
		if report.CreatedAt.IsZero() {
			report.CreatedAt = report.UpdatedAt
		}
		reports = append(reports, report)
	}
	return s.saveLocked(reportsFile, reports)
}

// SetReportLastRun advances a report's last-run marker. The read-modify-
// write happens under the store lock so two racing completions cannot
// interleave; the marker only moves forward.
func (s *Store) SetReportLastRun(id int, fireTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reports []domain.ReportDefinition
	if err := s.loadLocked(reportsFile, &reports); err != nil {
		return err
	}
	for i, r := range reports {
		if r.ID != id {
			continue
		}
		if fireTime.After(r.LastRun) {
			reports[i].LastRun = fireTime
			reports[i].UpdatedAt = time.Now().UTC()
			return s.saveLocked(reportsFile, reports)
		}
		return nil
	}
	return fmt.Errorf("report %d: %w", id, ErrNotFound)
}

// Templates returns all email templates
func (s *Store) Templates() ([]domain.EmailTemplate, error) {
	var templates []domain.EmailTemplate
	if err := s.load(templatesFile, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// TemplateByID returns one template or ErrNotFound
func (s *Store) TemplateByID(id int) (domain.EmailTemplate, error) {
	templates, err := s.Templates()
	if err != nil {
		return domain.EmailTemplate{}, err
	}
	for _, t := range templates {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.EmailTemplate{}, fmt.Errorf("template %d: %w", id, ErrNotFound)
}

// SMTPConfigs returns all SMTP endpoints
func (s *Store) SMTPConfigs() ([]domain.SMTPConfig, error) {
	var configs []domain.SMTPConfig
	if err := s.load(smtpFile, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// DefaultSMTPConfig returns the default active SMTP endpoint, or the
// first active one when none is marked default.
func (s *Store) DefaultSMTPConfig() (domain.SMTPConfig, error) {
	configs, err := s.SMTPConfigs()
	if err != nil {
		return domain.SMTPConfig{}, err
	}
	for _, c := range configs {
		if c.Default && c.Active {
			return c, nil
		}
	}
	for _, c := range configs {
		if c.Active {
			return c, nil
		}
	}
	return domain.SMTPConfig{}, fmt.Errorf("no active smtp config: %w", ErrNotFound)
}

// EnsureDefaultTemplates seeds the built-in templates when the template
// collection is empty.
func (s *Store) EnsureDefaultTemplates(defaults []domain.EmailTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var templates []domain.EmailTemplate
	if err := s.loadLocked(templatesFile, &templates); err != nil {
		return err
	}
	if len(templates) > 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range defaults {
		defaults[i].ID = i + 1
		defaults[i].CreatedAt = now
		defaults[i].UpdatedAt = now
	}
	return s.saveLocked(templatesFile, defaults)
}
