package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/taskdesk/api"
	"github.com/jmcleod/taskdesk/internal/app"
)

var (
	projectTitle       string
	projectDescription string
	projectDue         string
	projectClearDue    bool
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	Aliases: []string{"project"},
	Short:   "Manage projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(a *app.App) error {
			projects, err := a.Client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
				return nil
			}
			printProjects(cmd.OutOrStdout(), projects)
			return nil
		})
	},
}

var projectsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a project and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(a *app.App) error {
			p, err := a.Client.GetProject(cmd.Context(), id)
			if err != nil {
				return err
			}
			tasks, err := a.Client.ListTasks(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printProject(out, p)
			fmt.Fprintln(out)
			printTasks(out, tasks)
			return nil
		})
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		due, err := parseDue(projectDue)
		if err != nil {
			return err
		}
		in := api.ProjectInput{Title: projectTitle, Description: projectDescription, DueDate: due}
		return withSession(cmd, func(a *app.App) error {
			p, err := a.Client.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project #%d\n", p.ID)
			return nil
		})
	},
}

var projectsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a project",
	Long:  `Change the fields given as flags and keep the others.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		return withSession(cmd, func(a *app.App) error {
			p, err := a.Client.GetProject(cmd.Context(), id)
			if err != nil {
				return err
			}
			in := p.Input()
			if flags.Changed("title") {
				in.Title = projectTitle
			}
			if flags.Changed("description") {
				in.Description = projectDescription
			}
			if flags.Changed("due") {
				if in.DueDate, err = parseDue(projectDue); err != nil {
					return err
				}
			}
			if projectClearDue {
				in.DueDate = nil
			}
			if _, err := a.Client.UpdateProject(cmd.Context(), id, in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated project #%d\n", id)
			return nil
		})
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and all of its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd, func(a *app.App) error {
			if err := a.Client.DeleteProject(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project #%d\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsGetCmd, projectsCreateCmd, projectsUpdateCmd, projectsDeleteCmd)

	for _, c := range []*cobra.Command{projectsCreateCmd, projectsUpdateCmd} {
		c.Flags().StringVarP(&projectTitle, "title", "t", "", "Title")
		c.Flags().StringVarP(&projectDescription, "description", "d", "", "Description")
		c.Flags().StringVar(&projectDue, "due", "", "Due date (YYYY-MM-DD)")
	}
	projectsUpdateCmd.Flags().BoolVar(&projectClearDue, "clear-due", false, "Remove the due date")
}
