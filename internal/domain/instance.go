package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserType mirrors the upstream GetUserDetails user type codes
type UserType int

const (
	UserTypeSingle UserType = 1
	UserTypeGroup  UserType = 2
	UserTypeSystem UserType = 3
)

// UserDetail is an individual user or group as reported by the upstream API
type UserDetail struct {
	UserID      int
	DisplayName string
	SMTP        string
	Type        UserType
	Disabled    bool
}

// LinkedDocument is a document attached to a workflow instance.
// CategoryName and IndexData are split out of the upstream IndexDataString;
// FullString preserves the raw value for templates that relied on it.
type LinkedDocument struct {
	DocNo        int
	CategoryNo   int
	CategoryName string
	IndexData    string
	FullString   string
}

// InstanceForUser is one workflow instance flattened to a single recipient.
// TaskDue is the zero time when the instance has no due date.
type InstanceForUser struct {
	InstanceNo      int
	ProcessNo       int
	ProcessName     string
	TaskName        string
	TaskStart       time.Time
	TaskDue         time.Time
	ProcessStart    time.Time
	TokenNo         int
	UserID          int
	UserDisplayName string
	UserSMTP        string
	Overdue         bool
	LinkedDocuments []LinkedDocument
	TenantBaseURL   string
}

// TWAURL returns the Therefore Web Access deep link for this instance
func (i InstanceForUser) TWAURL() string {
	return fmt.Sprintf("%s/tdwv/#/workflows/instance/%d/%d", i.TenantBaseURL, i.InstanceNo, i.TokenNo)
}

// IndexDataString concatenates the linked documents' raw index strings.
// Kept for backward compatibility with templates written against the
// pre-structured format.
func (i InstanceForUser) IndexDataString() string {
	parts := make([]string, 0, len(i.LinkedDocuments))
	for _, doc := range i.LinkedDocuments {
		if doc.FullString != "" {
			parts = append(parts, doc.FullString)
		}
	}
	return strings.Join(parts, " | ")
}

// IsOverdue reports whether the task's due date has passed at the given time.
// Instances without a due date are never overdue.
func (i InstanceForUser) IsOverdue(now time.Time) bool {
	return !i.TaskDue.IsZero() && i.TaskDue.Before(now)
}
