// Package dashboard aggregates project statistics for the overview screen.
package dashboard

import (
	"math"
	"slices"

	"github.com/jmcleod/taskdesk/api"
)

// DefaultUpcoming is the number of upcoming deadlines shown by default.
const DefaultUpcoming = 3

// Summary is the dashboard overview.
type Summary struct {
	TotalProjects  int
	TotalTasks     int
	CompletedTasks int
	// CompletionRate is the rounded percentage of completed tasks, 0 when
	// there are none.
	CompletionRate int
	// Upcoming holds projects with a due date, soonest first. Overdue
	// projects are included.
	Upcoming []api.Project
}

// Summarize computes the overview for projects as returned by
// api.Client.ListProjects. A non-positive upcomingLimit selects
// DefaultUpcoming.
func Summarize(projects []api.Project, upcomingLimit int) Summary {
	if upcomingLimit <= 0 {
		upcomingLimit = DefaultUpcoming
	}

	s := Summary{TotalProjects: len(projects)}
	var dated []api.Project
	for _, p := range projects {
		s.TotalTasks += p.TotalTasks
		s.CompletedTasks += p.CompletedTasks
		if p.DueDate != nil && !p.DueDate.IsZero() {
			dated = append(dated, p)
		}
	}
	s.CompletionRate = Percent(s.CompletedTasks, s.TotalTasks)

	slices.SortStableFunc(dated, func(a, b api.Project) int {
		return a.DueDate.Compare(b.DueDate.Time)
	})
	if len(dated) > upcomingLimit {
		dated = dated[:upcomingLimit]
	}
	s.Upcoming = dated
	return s
}

// Percent returns done/total as a rounded percentage, or 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// Progress returns the completion percentage of a single project.
func Progress(p api.Project) int {
	return Percent(p.CompletedTasks, p.TotalTasks)
}
