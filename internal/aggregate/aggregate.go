// Package aggregate turns flattened workflow instances into the grouped,
// render-ready shape. Everything here is pure and operates on
// already-fetched data.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
)

// indexDataSeparator divides the category name from the value list in an
// upstream IndexDataString ("Category Name - Value1, Value2, ...").
const indexDataSeparator = " - "

// RecipientGroup holds one recipient's instances in first-seen order
type RecipientGroup struct {
	Email     string
	Instances []domain.InstanceForUser
}

// GroupByRecipient buckets instances by the assignee's SMTP address,
// preserving the order in which each address first appears. Instances
// whose address is missing or not mailable are returned separately.
func GroupByRecipient(instances []domain.InstanceForUser) (groups []RecipientGroup, skipped []domain.InstanceForUser) {
	index := make(map[string]int)
	for _, inst := range instances {
		email := inst.UserSMTP
		if email == "" || !strings.Contains(email, "@") {
			skipped = append(skipped, inst)
			continue
		}
		i, ok := index[email]
		if !ok {
			i = len(groups)
			index[email] = i
			groups = append(groups, RecipientGroup{Email: email})
		}
		groups[i].Instances = append(groups[i].Instances, inst)
	}
	return groups, skipped
}

// SplitOverdue partitions instances into overdue and on-track slices,
// each preserving relative order.
func SplitOverdue(instances []domain.InstanceForUser) (overdue, onTrack []domain.InstanceForUser) {
	for _, inst := range instances {
		if inst.Overdue {
			overdue = append(overdue, inst)
		} else {
			onTrack = append(onTrack, inst)
		}
	}
	return overdue, onTrack
}

// ParseIndexData splits an IndexDataString into category name and index
// data. Without the separator the category is empty and the whole string
// becomes the data.
func ParseIndexData(full string) (categoryName, indexData string) {
	if before, after, found := strings.Cut(full, indexDataSeparator); found {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	return "", full
}

// farFuture sorts instances without a due date after everything else
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// SortInstances orders instances for presentation. Sorting is stable, so
// repeated application leaves an already-sorted slice untouched.
func SortInstances(instances []domain.InstanceForUser, order domain.SortOrder) []domain.InstanceForUser {
	if len(instances) == 0 {
		return instances
	}
	sorted := make([]domain.InstanceForUser, len(instances))
	copy(sorted, instances)

	switch order {
	case domain.SortByProcessName:
		sort.SliceStable(sorted, func(i, j int) bool {
			ni, nj := strings.ToLower(sorted[i].ProcessName), strings.ToLower(sorted[j].ProcessName)
			if ni != nj {
				return ni < nj
			}
			return dueOrFarFuture(sorted[i]).Before(dueOrFarFuture(sorted[j]))
		})
	case domain.SortByStartDate:
		sort.SliceStable(sorted, func(i, j int) bool {
			return startOrFarFuture(sorted[i]).Before(startOrFarFuture(sorted[j]))
		})
	default: // SortByDueDate: overdue first, then by due date, no due date last
		sort.SliceStable(sorted, func(i, j int) bool {
			ri, rj := dueRank(sorted[i]), dueRank(sorted[j])
			if ri != rj {
				return ri < rj
			}
			return dueOrFarFuture(sorted[i]).Before(dueOrFarFuture(sorted[j]))
		})
	}
	return sorted
}

func dueRank(inst domain.InstanceForUser) int {
	switch {
	case inst.TaskDue.IsZero():
		return 2
	case inst.Overdue:
		return 0
	default:
		return 1
	}
}

func dueOrFarFuture(inst domain.InstanceForUser) time.Time {
	if inst.TaskDue.IsZero() {
		return farFuture
	}
	return inst.TaskDue
}

func startOrFarFuture(inst domain.InstanceForUser) time.Time {
	if inst.TaskStart.IsZero() {
		return farFuture
	}
	return inst.TaskStart
}
