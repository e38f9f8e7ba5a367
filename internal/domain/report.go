package domain

import "time"

// Tenant identifies one upstream Therefore instance
type Tenant struct {
	ID             int       `yaml:"id"`
	Name           string    `yaml:"name"`
	Description    string    `yaml:"description,omitempty"`
	BaseURL        string    `yaml:"base_url"`
	AuthToken      string    `yaml:"auth_token"`
	SingleInstance bool      `yaml:"single_instance,omitempty"`
	Active         bool      `yaml:"is_active"`
	CreatedAt      time.Time `yaml:"created_at,omitempty"`
	UpdatedAt      time.Time `yaml:"updated_at,omitempty"`
}

// ReportDefinition describes one scheduled summary report
type ReportDefinition struct {
	ID                int       `yaml:"id"`
	Name              string    `yaml:"name"`
	Description       string    `yaml:"description,omitempty"`
	TenantID          int       `yaml:"tenant_id"`
	TemplateID        int       `yaml:"template_id"`
	ProcessNos        []int     `yaml:"workflow_processes,omitempty"`
	CronExpr          string    `yaml:"cron_schedule"`
	Enabled           bool      `yaml:"enabled"`
	SendAllToAdmin    bool      `yaml:"send_all_to_admin,omitempty"`
	AdminEmail        string    `yaml:"admin_email,omitempty"`
	SkipUserExpansion bool      `yaml:"skip_user_expansion,omitempty"`
	SortOrder         SortOrder `yaml:"sort_order,omitempty"`
	LastRun           time.Time `yaml:"last_run,omitempty"`
	CreatedAt         time.Time `yaml:"created_at,omitempty"`
	UpdatedAt         time.Time `yaml:"updated_at,omitempty"`
}

// EffectiveSortOrder returns the report's sort order, falling back to the default
func (r ReportDefinition) EffectiveSortOrder() SortOrder {
	switch r.SortOrder {
	case SortByDueDate, SortByProcessName, SortByStartDate:
		return r.SortOrder
	}
	return DefaultSortOrder
}

// EmailTemplate holds the subject and body sources for rendered summary emails
type EmailTemplate struct {
	ID              int       `yaml:"id"`
	Name            string    `yaml:"name"`
	Description     string    `yaml:"description,omitempty"`
	SubjectTemplate string    `yaml:"subject_template"`
	BodyTemplate    string    `yaml:"body_template"`
	Default         bool      `yaml:"is_default,omitempty"`
	CreatedAt       time.Time `yaml:"created_at,omitempty"`
	UpdatedAt       time.Time `yaml:"updated_at,omitempty"`
}

// SMTPConfig describes one outbound mail endpoint
type SMTPConfig struct {
	ID          int       `yaml:"id"`
	Name        string    `yaml:"name"`
	Host        string    `yaml:"server"`
	Port        int       `yaml:"port"`
	Username    string    `yaml:"username"`
	Password    string    `yaml:"password"`
	UseTLS      bool      `yaml:"use_tls"`
	FromAddress string    `yaml:"from_address"`
	FromName    string    `yaml:"from_name,omitempty"`
	Default     bool      `yaml:"is_default,omitempty"`
	Active      bool      `yaml:"is_active"`
	CreatedAt   time.Time `yaml:"created_at,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}
