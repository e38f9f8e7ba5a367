package therefore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuflow/therenotify/internal/aggregate"
	"github.com/docuflow/therenotify/internal/domain"
)

var (
	// ErrUpstreamUnavailable covers network failures and 5xx responses.
	// Fatal to a run; retried on the next scheduled fire.
	ErrUpstreamUnavailable = errors.New("therefore: upstream unavailable")
	// ErrUpstreamAuth covers 401/403 responses. Fatal and persistent until
	// the tenant's credentials are fixed.
	ErrUpstreamAuth = errors.New("therefore: authentication rejected")
)

const (
	apiPathPrefix = "/theservice/v0001/restun"

	// statistics query types: processes with active instances / with errors
	statsQueryActive = 102
	statsQueryErrors = 108

	// WSObjectType for workflow processes in GetObjectsList
	objectTypeWorkflowProcess = 19

	defaultHTTPTimeout  = 300 * time.Second
	defaultDetailFanOut = 10

	// group graphs deeper than this are assumed cyclic or malformed
	maxGroupDepth = 10

	processCacheTTL = time.Hour
)

// Client talks to one tenant's Therefore Web API
type Client struct {
	baseURL        string
	apiBase        string
	tenantName     string
	authToken      string
	singleInstance bool

	httpClient   *http.Client
	detailFanOut int
	now          func() time.Time

	procMu       sync.Mutex
	procCache    []Process
	procCachedAt time.Time
}

// NewClient builds a client for the given tenant
func NewClient(tenant domain.Tenant) *Client {
	base := strings.TrimRight(tenant.BaseURL, "/")
	return &Client{
		baseURL:        base,
		apiBase:        base + apiPathPrefix,
		tenantName:     tenant.Name,
		authToken:      tenant.AuthToken,
		singleInstance: tenant.SingleInstance,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		detailFanOut:   defaultDetailFanOut,
		now:            time.Now,
	}
}

// SetHTTPTimeout overrides the default request timeout
func (c *Client) SetHTTPTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetDetailFanOut bounds the number of concurrent instance-detail fetches
func (c *Client) SetDetailFanOut(n int) {
	if n > 0 {
		c.detailFanOut = n
	}
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("Authorization", c.authToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// On-prem single-instance servers reject the TenantName header.
	if !c.singleInstance {
		req.Header.Set("TenantName", c.tenantName)
	}
}

// post issues a JSON POST and decodes the response into out.
// Transport and status errors are mapped onto the typed upstream errors.
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, endpoint); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/"+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	c.headers(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, endpoint); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decoding response: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	return nil
}

func checkStatus(resp *http.Response, endpoint string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", ErrUpstreamAuth, endpoint, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUpstreamUnavailable, endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// TestConnection verifies reachability and credentials, returning the
// upstream customer id on success.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	var out customerIDResponse
	if err := c.get(ctx, "GetSystemCustomerId", &out); err != nil {
		return "", err
	}
	if out.CustomerID == "" {
		return "", fmt.Errorf("%w: GetSystemCustomerId returned no customer id", ErrUpstreamUnavailable)
	}
	return out.CustomerID, nil
}

// WorkflowProcesses lists all workflow process definitions, sorted by
// folder then name. Results are cached for an hour; the listing rarely
// changes and the upstream call is expensive.
func (c *Client) WorkflowProcesses(ctx context.Context) ([]Process, error) {
	c.procMu.Lock()
	if c.procCache != nil && c.now().Sub(c.procCachedAt) < processCacheTTL {
		cached := c.procCache
		c.procMu.Unlock()
		return cached, nil
	}
	c.procMu.Unlock()

	payload := map[string]any{
		"LoadItemsList": []map[string]int{{"Flags": 0, "Type": objectTypeWorkflowProcess}},
	}
	var out objectsListResponse
	if err := c.post(ctx, "GetObjectsList", payload, &out); err != nil {
		return nil, err
	}

	folders := make(map[int]string)
	for _, list := range out.AllItemsList {
		for _, f := range list.FolderList {
			folders[f.FolderNo] = f.Name
		}
	}

	var processes []Process
	for _, list := range out.AllItemsList {
		for _, item := range list.ItemList {
			if item.ID == 0 {
				continue
			}
			processes = append(processes, Process{
				ProcessNo:   item.ID,
				ProcessName: item.Name,
				FolderName:  folders[item.FolderNo],
			})
		}
	}
	sort.Slice(processes, func(i, j int) bool {
		if processes[i].FolderName != processes[j].FolderName {
			return processes[i].FolderName < processes[j].FolderName
		}
		return processes[i].ProcessName < processes[j].ProcessName
	})

	c.procMu.Lock()
	c.procCache = processes
	c.procCachedAt = c.now()
	c.procMu.Unlock()
	return processes, nil
}

// ListWorkflowInstances returns deduplicated instance refs for the given
// options, in upstream listing order.
func (c *Client) ListWorkflowInstances(ctx context.Context, opts QueryOptions) ([]InstanceRef, error) {
	var refs []InstanceRef
	var err error
	if len(opts.ProcessNos) > 0 {
		refs, err = c.queryProcesses(ctx, opts)
	} else {
		refs, err = c.queryAllWithFallback(ctx, opts)
	}
	if err != nil {
		return nil, err
	}
	return dedupeRefs(refs), nil
}

func (c *Client) queryProcesses(ctx context.Context, opts QueryOptions) ([]InstanceRef, error) {
	processNos := dedupeInts(opts.ProcessNos)

	// Pre-filter with the statistics query so processes with no active
	// instances are not queried at all. Failure here is non-critical.
	if active, err := c.activeProcesses(ctx, opts.flags()); err == nil && active != nil {
		filtered := processNos[:0]
		for _, no := range processNos {
			if active[no] {
				filtered = append(filtered, no)
			}
		}
		if skipped := len(processNos) - len(filtered); skipped > 0 {
			log.Printf("therefore: skipped %d processes with no active instances", skipped)
		}
		processNos = filtered
	}

	var refs []InstanceRef
	for _, no := range processNos {
		rows, err := c.queryProcess(ctx, no, opts)
		if err != nil {
			if errors.Is(err, ErrUpstreamAuth) {
				return nil, err
			}
			// A single corrupted process must not block the batch.
			log.Printf("therefore: skipping process %d: %v", no, err)
			continue
		}
		refs = append(refs, rows...)
	}
	return refs, nil
}

func (c *Client) queryProcess(ctx context.Context, processNo int, opts QueryOptions) ([]InstanceRef, error) {
	payload := map[string]any{
		"ProcessNo":     processNo,
		"WorkflowFlags": int(opts.flags()),
		"MaxRows":       opts.maxRows(),
	}
	var out queryProcessResponse
	if err := c.post(ctx, "ExecuteWorkflowQueryForProcess", payload, &out); err != nil {
		return nil, err
	}
	return refsFromRows(out.WorkflowQueryResult.ResultRows), nil
}

// queryAllWithFallback tries the global workflow query first. When a
// corrupted instance makes it fail, the statistics query identifies the
// processes worth querying individually.
func (c *Client) queryAllWithFallback(ctx context.Context, opts QueryOptions) ([]InstanceRef, error) {
	payload := map[string]any{
		"WorkflowFlags": int(opts.flags()),
		"MaxRows":       opts.maxRows(),
	}
	var out queryAllResponse
	err := c.post(ctx, "ExecuteWorkflowQueryForAll", payload, &out)
	if err == nil {
		var refs []InstanceRef
		for _, result := range out.WorkflowQueryResultList {
			refs = append(refs, refsFromRows(result.ResultRows)...)
		}
		return refs, nil
	}
	if errors.Is(err, ErrUpstreamAuth) {
		return nil, err
	}

	log.Printf("therefore: ExecuteWorkflowQueryForAll failed, querying per process: %v", err)
	active, statsErr := c.activeProcesses(ctx, opts.flags())
	if statsErr != nil || active == nil {
		// Both paths failed; surface the original error.
		return nil, err
	}

	processNos := make([]int, 0, len(active))
	for no := range active {
		processNos = append(processNos, no)
	}
	sort.Ints(processNos)

	var refs []InstanceRef
	for _, no := range processNos {
		rows, perr := c.queryProcess(ctx, no, opts)
		if perr != nil {
			if errors.Is(perr, ErrUpstreamAuth) {
				return nil, perr
			}
			log.Printf("therefore: skipping process %d: %v", no, perr)
			continue
		}
		refs = append(refs, rows...)
	}
	return refs, nil
}

// activeProcesses returns the set of process numbers with at least one
// matching instance, or nil if the statistics query is unavailable.
func (c *Client) activeProcesses(ctx context.Context, flags WorkflowFlags) (map[int]bool, error) {
	queryType := statsQueryActive
	if flags == FlagError {
		queryType = statsQueryErrors
	}
	var out statisticsResponse
	if err := c.post(ctx, "ExecuteStatisticsQuery", map[string]int{"QueryType": queryType}, &out); err != nil {
		return nil, err
	}
	active := make(map[int]bool)
	for _, row := range out.QueryResult.ResultRows {
		if row.EntryNo != 0 && row.CountValue > 0 {
			active[row.EntryNo] = true
		}
	}
	return active, nil
}

// GetInstanceDetail fetches one workflow instance with linked documents
// populated and dates normalized.
func (c *Client) GetInstanceDetail(ctx context.Context, instanceNo int) (*WorkflowInstance, error) {
	payload := map[string]int{"InstanceNo": instanceNo, "TokenNo": 0}
	var out instanceResponse
	if err := c.post(ctx, "GetWorkflowInstance", payload, &out); err != nil {
		return nil, err
	}

	wf := out.WorkflowInstance
	inst := &WorkflowInstance{
		InstanceNo:  wf.InstanceNo,
		ProcessNo:   wf.ProcessNo,
		ProcessName: wf.ProcessName,
		TaskName:    wf.CurrTaskName,
		AssignedTo:  wf.AssignedToUsers,
	}
	if inst.InstanceNo == 0 {
		inst.InstanceNo = instanceNo
	}

	inst.TaskStart = c.parseDate(instanceNo, "TaskStartDate", wf.TaskStartDate)
	inst.ProcessStart = c.parseDate(instanceNo, "ProcessStartDate", wf.ProcessStartDate)
	due := c.parseDate(instanceNo, "TaskDueDate", wf.TaskDueDate)
	// The upstream encodes "no due date" as a year-1899 placeholder.
	if !due.IsZero() && due.Year() > 1900 {
		inst.TaskDue = due
	}

	for _, doc := range out.LinkedDocuments {
		if doc.IndexDataString == "" {
			continue
		}
		category, data := aggregate.ParseIndexData(doc.IndexDataString)
		inst.LinkedDocuments = append(inst.LinkedDocuments, domain.LinkedDocument{
			DocNo:        doc.DocNo,
			CategoryNo:   doc.CategoryNo,
			CategoryName: category,
			IndexData:    data,
			FullString:   doc.IndexDataString,
		})
	}
	return inst, nil
}

func (c *Client) parseDate(instanceNo int, field, raw string) time.Time {
	t, err := ParseAPIDate(raw)
	if err != nil {
		log.Printf("therefore: instance %d: bad %s: %v", instanceNo, field, err)
	}
	return t
}

// UserDetails resolves one user or group id
func (c *Client) UserDetails(ctx context.Context, userOrGroupID int) (domain.UserDetail, error) {
	payload := map[string]int{"UserOrGroupId": userOrGroupID}
	var out userDetailsResponse
	if err := c.post(ctx, "GetUserDetails", payload, &out); err != nil {
		return domain.UserDetail{}, err
	}
	return out.UserDetails.detail(userOrGroupID), nil
}

// usersFromGroup lists a group's direct members. Asking for a non-group id
// yields the upstream "User has wrong type" error, which is treated as an
// empty membership.
func (c *Client) usersFromGroup(ctx context.Context, groupID int) ([]domain.UserDetail, error) {
	payload := map[string]int{"GroupId": groupID}
	var out groupUsersResponse
	if err := c.post(ctx, "GetUsersFromGroup", payload, &out); err != nil {
		if strings.Contains(err.Error(), "User has wrong type") {
			return nil, nil
		}
		return nil, err
	}
	members := make([]domain.UserDetail, 0, len(out.Users))
	for _, u := range out.Users {
		if !u.Disabled {
			members = append(members, u.detail(0))
		}
	}
	return members, nil
}

// ExpandAssignee resolves assignee ids to the set of individual users,
// following nested groups. Expansion is iterative with a visited set and a
// depth bound so cyclic or malformed group graphs always terminate. Each
// user appears at most once regardless of how many groups reach them.
func (c *Client) ExpandAssignee(ctx context.Context, assigneeIDs []int) ([]domain.UserDetail, error) {
	type pending struct {
		detail domain.UserDetail
		depth  int
	}

	var queue []pending
	seen := make(map[int]bool)

	for _, id := range assigneeIDs {
		detail, err := c.UserDetails(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUpstreamAuth) {
				return nil, err
			}
			log.Printf("therefore: assignee %d lookup failed: %v", id, err)
			continue
		}
		queue = append(queue, pending{detail: detail})
	}

	var users []domain.UserDetail
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if seen[item.detail.UserID] {
			continue
		}
		seen[item.detail.UserID] = true

		switch item.detail.Type {
		case domain.UserTypeGroup:
			if item.depth >= maxGroupDepth {
				log.Printf("therefore: group %d exceeds expansion depth %d, skipping", item.detail.UserID, maxGroupDepth)
				continue
			}
			members, err := c.usersFromGroup(ctx, item.detail.UserID)
			if err != nil {
				if errors.Is(err, ErrUpstreamAuth) {
					return nil, err
				}
				log.Printf("therefore: group %d expansion failed: %v", item.detail.UserID, err)
				continue
			}
			for _, m := range members {
				queue = append(queue, pending{detail: m, depth: item.depth + 1})
			}
		case domain.UserTypeSingle:
			if !item.detail.Disabled {
				users = append(users, item.detail)
			}
		}
	}
	return users, nil
}

// AllInstancesForUsers is the composed entry point: list instances, fetch
// detail for each concurrently, expand assignees and flatten to one row
// per (instance, user). A failure on the listing aborts; failures on
// individual instances become Faults and the batch continues. Row order is
// not guaranteed to match the listing.
func (c *Client) AllInstancesForUsers(ctx context.Context, opts QueryOptions) (FetchResult, error) {
	refs, err := c.ListWorkflowInstances(ctx, opts)
	if err != nil {
		return FetchResult{}, err
	}

	var (
		mu     sync.Mutex
		result FetchResult
	)
	now := c.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.detailFanOut)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			rows, err := c.instanceRows(gctx, ref, opts, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Faults = append(result.Faults, Fault{InstanceNo: ref.InstanceNo, Err: err})
				return nil
			}
			result.Instances = append(result.Instances, rows...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return FetchResult{}, err
	}
	return result, nil
}

func (c *Client) instanceRows(ctx context.Context, ref InstanceRef, opts QueryOptions, now time.Time) ([]domain.InstanceForUser, error) {
	inst, err := c.GetInstanceDetail(ctx, ref.InstanceNo)
	if err != nil {
		return nil, err
	}

	if opts.SkipUserExpansion {
		row := c.flatten(inst, ref.TokenNo, domain.UserDetail{DisplayName: "SYSTEM"}, now)
		return []domain.InstanceForUser{row}, nil
	}

	users, err := c.ExpandAssignee(ctx, inst.AssignedTo)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.InstanceForUser, 0, len(users))
	for _, user := range users {
		rows = append(rows, c.flatten(inst, ref.TokenNo, user, now))
	}
	return rows, nil
}

func (c *Client) flatten(inst *WorkflowInstance, tokenNo int, user domain.UserDetail, now time.Time) domain.InstanceForUser {
	row := domain.InstanceForUser{
		InstanceNo:      inst.InstanceNo,
		ProcessNo:       inst.ProcessNo,
		ProcessName:     inst.ProcessName,
		TaskName:        inst.TaskName,
		TaskStart:       inst.TaskStart,
		TaskDue:         inst.TaskDue,
		ProcessStart:    inst.ProcessStart,
		TokenNo:         tokenNo,
		UserID:          user.UserID,
		UserDisplayName: user.DisplayName,
		UserSMTP:        user.SMTP,
		LinkedDocuments: inst.LinkedDocuments,
		TenantBaseURL:   c.baseURL,
	}
	row.Overdue = row.IsOverdue(now)
	return row
}

func refsFromRows(rows []queryRow) []InstanceRef {
	refs := make([]InstanceRef, 0, len(rows))
	for _, row := range rows {
		if row.InstanceNo != 0 {
			refs = append(refs, InstanceRef{InstanceNo: row.InstanceNo, TokenNo: row.TokenNo})
		}
	}
	return refs
}

func dedupeRefs(refs []InstanceRef) []InstanceRef {
	seen := make(map[InstanceRef]bool, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}

func dedupeInts(nos []int) []int {
	seen := make(map[int]bool, len(nos))
	out := make([]int, 0, len(nos))
	for _, no := range nos {
		if !seen[no] {
			seen[no] = true
			out = append(out, no)
		}
	}
	return out
}
