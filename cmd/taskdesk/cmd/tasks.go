package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/internal/app"
)

var (
	taskTitle       string
	taskDescription string
	taskStatus      string
	taskPriority    string
	taskDue         string
	taskClearDue    bool
	taskFilter      string
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"task"},
	Short:   "Manage tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the tasks of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(a *app.App) error {
			tasks, err := a.Client.ListTasks(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if taskFilter != "" {
				tasks = filterTasks(tasks, api.TaskStatus(taskFilter))
			}
			printTasks(cmd.OutOrStdout(), tasks)
			return nil
		})
	},
}

func filterTasks(tasks []api.Task, status api.TaskStatus) []api.Task {
	var out []api.Task
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

var tasksGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(a *app.App) error {
			t, err := a.Client.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		})
	},
}

var tasksCreateCmd = &cobra.Command{
	Use:   "create <project-id>",
	Short: "Add a task to a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		due, err := parseDue(taskDue)
		if err != nil {
			return err
		}
		in := api.TaskInput{
			Title:       taskTitle,
			Description: taskDescription,
			Status:      api.TaskStatus(taskStatus),
			Priority:    api.Priority(taskPriority),
			DueDate:     due,
		}
		return withSession(cmd, func(a *app.App) error {
			t, err := a.Client.CreateTask(cmd.Context(), projectID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task #%d in project #%d\n", t.ID, projectID)
			return nil
		})
	},
}

var tasksUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a task",
	Long:  `Change the fields given as flags and keep the others.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		return withSession(cmd, func(a *app.App) error {
			t, err := a.Client.GetTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			in := t.Input()
			if flags.Changed("title") {
				in.Title = taskTitle
			}
			if flags.Changed("description") {
				in.Description = taskDescription
			}
			if flags.Changed("status") {
				in.Status = api.TaskStatus(taskStatus)
			}
			if flags.Changed("priority") {
				in.Priority = api.Priority(taskPriority)
			}
			if flags.Changed("due") {
				if in.DueDate, err = parseDue(taskDue); err != nil {
					return err
				}
			}
			if taskClearDue {
				in.DueDate = nil
			}
			if _, err := a.Client.UpdateTask(cmd.Context(), id, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task #%d\n", id)
			return nil
		})
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(a *app.App) error {
			if err := a.Client.DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task #%d\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksGetCmd, tasksCreateCmd, tasksUpdateCmd, tasksDeleteCmd)

	tasksListCmd.Flags().StringVar(&taskFilter, "status", "", "Only show tasks with this status")

	for _, c := range []*cobra.Command{tasksCreateCmd, tasksUpdateCmd} {
		c.Flags().StringVarP(&taskTitle, "title", "t", "", "Title")
		c.Flags().StringVarP(&taskDescription, "description", "d", "", "Description")
		c.Flags().StringVarP(&taskStatus, "status", "s", "", "Status: pending, in_progress or completed")
		c.Flags().StringVarP(&taskPriority, "priority", "p", "", "Priority: low, medium or high")
		c.Flags().StringVar(&taskDue, "due", "", "Due date (YYYY-MM-DD)")
	}
	tasksUpdateCmd.Flags().BoolVar(&taskClearDue, "clear-due", false, "Remove the due date")
}
