package therefore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
)

// WorkflowFlags filter which instances a workflow query returns.
// Values can be combined with bitwise OR.
type WorkflowFlags int

const (
	FlagDefault  WorkflowFlags = 0
	FlagRunning  WorkflowFlags = 1
	FlagFinished WorkflowFlags = 2
	FlagAll      WorkflowFlags = 3
	FlagError    WorkflowFlags = 4
	FlagOverdue  WorkflowFlags = 8
)

// InstanceRef identifies one workflow instance row returned by a query.
// TokenNo is needed for the web-access deep link.
type InstanceRef struct {
	InstanceNo int
	TokenNo    int
}

// QueryOptions control a workflow instance fetch
type QueryOptions struct {
	// ProcessNos restricts the query to specific workflow processes.
	// Empty means all processes.
	ProcessNos []int
	// MaxRows caps the instance listing. Zero means the default of 10000.
	MaxRows int
	// Flags defaults to FlagRunning when zero-valued and unset explicitly.
	Flags WorkflowFlags
	// FlagsSet marks Flags as intentionally chosen (FlagDefault is a valid value).
	FlagsSet bool
	// SkipUserExpansion emits one SYSTEM-assigned row per instance instead
	// of expanding assignees. Used for error reports.
	SkipUserExpansion bool
}

func (o QueryOptions) maxRows() int {
	if o.MaxRows <= 0 {
		return 10000
	}
	return o.MaxRows
}

func (o QueryOptions) flags() WorkflowFlags {
	if !o.FlagsSet {
		return FlagRunning
	}
	return o.Flags
}

// Fault records a non-fatal failure for a single instance during a fetch
type Fault struct {
	InstanceNo int
	Err        error
}

func (f Fault) Error() string {
	return fmt.Sprintf("instance %d: %v", f.InstanceNo, f.Err)
}

// FetchResult carries the flattened instances plus any per-instance
// failures that were skipped rather than aborting the batch.
type FetchResult struct {
	Instances []domain.InstanceForUser
	Faults    []Fault
}

// WorkflowInstance is one instance with detail populated.
// TaskDue is the zero time when the instance has no due date.
type WorkflowInstance struct {
	InstanceNo      int
	ProcessNo       int
	ProcessName     string
	TaskName        string
	TaskStart       time.Time
	TaskDue         time.Time
	ProcessStart    time.Time
	AssignedTo      []int
	LinkedDocuments []domain.LinkedDocument
}

// Process is one workflow process definition
type Process struct {
	ProcessNo   int
	ProcessName string
	FolderName  string
}

// wire types below mirror the upstream JSON shapes

type queryRow struct {
	InstanceNo int `json:"InstanceNo"`
	TokenNo    int `json:"TokenNo"`
}

type queryAllResponse struct {
	WorkflowQueryResultList []struct {
		ResultRows []queryRow `json:"ResultRows"`
	} `json:"WorkflowQueryResultList"`
}

type queryProcessResponse struct {
	WorkflowQueryResult struct {
		ResultRows []queryRow `json:"ResultRows"`
	} `json:"WorkflowQueryResult"`
}

type statisticsResponse struct {
	QueryResult struct {
		ResultRows []struct {
			EntryNo    int `json:"EntryNo"`
			CountValue int `json:"CountValue"`
		} `json:"ResultRows"`
	} `json:"QueryResult"`
}

type instanceResponse struct {
	WorkflowInstance struct {
		InstanceNo       int    `json:"InstanceNo"`
		ProcessNo        int    `json:"ProcessNo"`
		ProcessName      string `json:"ProcessName"`
		CurrTaskName     string `json:"CurrTaskName"`
		TaskStartDate    string `json:"TaskStartDate"`
		TaskDueDate      string `json:"TaskDueDate"`
		ProcessStartDate string `json:"ProcessStartDate"`
		AssignedToUsers  []int  `json:"AssignedToUsers"`
	} `json:"WorkflowInstance"`
	LinkedDocuments []struct {
		DocNo           int    `json:"DocNo"`
		CategoryNo      int    `json:"CategoryNo"`
		IndexDataString string `json:"IndexDataString"`
	} `json:"LinkedDocuments"`
}

// wireUserType accepts the user type as either an integer code or the
// symbolic name; the upstream API is inconsistent between endpoints.
type wireUserType domain.UserType

func (u *wireUserType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = wireUserType(domain.UserTypeSingle)
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "UserGroup":
			*u = wireUserType(domain.UserTypeGroup)
		case "SystemUser":
			*u = wireUserType(domain.UserTypeSystem)
		default:
			*u = wireUserType(domain.UserTypeSingle)
		}
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("user type %s: %w", data, err)
	}
	*u = wireUserType(n)
	return nil
}

type wireUser struct {
	UserID      int          `json:"UserId"`
	DisplayName string       `json:"DisplayName"`
	SMTP        string       `json:"SMTP"`
	UserType    wireUserType `json:"UserType"`
	Disabled    bool         `json:"Disabled"`
}

func (w wireUser) detail(fallbackID int) domain.UserDetail {
	id := w.UserID
	if id == 0 {
		id = fallbackID
	}
	return domain.UserDetail{
		UserID:      id,
		DisplayName: w.DisplayName,
		SMTP:        w.SMTP,
		Type:        domain.UserType(w.UserType),
		Disabled:    w.Disabled,
	}
}

type userDetailsResponse struct {
	UserDetails wireUser `json:"UserDetails"`
}

type groupUsersResponse struct {
	Users []wireUser `json:"Users"`
}

type customerIDResponse struct {
	CustomerID string `json:"CustomerId"`
}

type objectsListResponse struct {
	AllItemsList []struct {
		FolderList []struct {
			FolderNo int    `json:"FolderNo"`
			Name     string `json:"Name"`
		} `json:"FolderList"`
		ItemList []struct {
			ID       int    `json:"ID"`
			Name     string `json:"Name"`
			FolderNo int    `json:"FolderNo"`
		} `json:"ItemList"`
	} `json:"AllItemsList"`
}
