package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/dashboard"
)

const dateLayout = "2006-01-02"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatDate(ts *api.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return ts.Format(dateLayout)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseDue parses a due date flag. An empty string means no due date.
func parseDue(s string) (*api.Timestamp, error) {
	if s == "" {
		return nil, nil
	}
	ts, err := api.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("invalid due date %q: use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", s)
	}
	return &ts, nil
}

func printUser(w io.Writer, u *api.User) {
	fmt.Fprintf(w, "%s <%s> (id %d, member since %s)\n",
		u.Username, u.Email, u.ID, u.CreatedAt.Format(dateLayout))
}

func printProjects(w io.Writer, projects []api.Project) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tDUE\tTASKS\tPROGRESS")
	for _, p := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d%%\n",
			p.ID, p.Title, formatDate(p.DueDate), p.CompletedTasks, p.TotalTasks, dashboard.Progress(p))
	}
	tw.Flush()
}

func printProject(w io.Writer, p api.Project) {
	fmt.Fprintf(w, "#%d %s\n", p.ID, p.Title)
	if p.Description != "" {
		fmt.Fprintf(w, "  %s\n", p.Description)
	}
	fmt.Fprintf(w, "  due: %s  created: %s\n", formatDate(p.DueDate), p.CreatedAt.Format(dateLayout))
}

func printTasks(w io.Writer, tasks []api.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tDUE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Priority, formatDate(t.DueDate))
	}
	tw.Flush()
}

func printTask(w io.Writer, t api.Task) {
	fmt.Fprintf(w, "#%d %s [%s, %s priority]\n", t.ID, t.Title, t.Status, t.Priority)
	if t.Description != "" {
		fmt.Fprintf(w, "  %s\n", t.Description)
	}
	fmt.Fprintf(w, "  project: %d  due: %s  created: %s\n", t.ProjectID, formatDate(t.DueDate), t.CreatedAt.Format(dateLayout))
}

func printSummary(w io.Writer, s dashboard.Summary, now time.Time) {
	fmt.Fprintf(w, "Projects:        %d\n", s.TotalProjects)
	fmt.Fprintf(w, "Tasks:           %d\n", s.TotalTasks)
	fmt.Fprintf(w, "Completed:       %d\n", s.CompletedTasks)
	fmt.Fprintf(w, "Completion rate: %d%%\n\n", s.CompletionRate)

	if len(s.Upcoming) == 0 {
		fmt.Fprintln(w, "No upcoming deadlines.")
		return
	}
	fmt.Fprintln(w, "Upcoming deadlines:")
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tPROJECT\tDUE\tPROGRESS")
	for _, p := range s.Upcoming {
		due := formatDate(p.DueDate)
		if p.DueDate.Before(now) {
			due += " (overdue)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d%%\n", p.ID, p.Title, due, dashboard.Progress(p))
	}
	tw.Flush()
}
