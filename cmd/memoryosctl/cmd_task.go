package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage todo/goal tasks in the task registry",
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskAddCmd, taskGoalCmd, taskListCmd, taskGetCmd, taskUpdateCmd, taskDoneCmd, taskBlockCmd)
}

var (
	taskTopic      string
	taskImportance string
	taskDependsOn  []string
)

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&taskTopic, "topic", "", "task topic")
	cmd.Flags().StringVar(&taskImportance, "importance", "M", "H, M, or L")
	cmd.Flags().StringArrayVar(&taskDependsOn, "depends-on", nil, "task_id this task depends on, repeatable")
}

var taskAddCmd = &cobra.Command{
	Use:   "add <task_id> <text>",
	Short: "Create a new todo task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			var id int64
			var err error
			if len(taskDependsOn) > 0 {
				id, err = a.registry.AddTaskWithDeps(args[0], glyph.TypeTodo, taskTopic, args[1], taskImportance, taskDependsOn)
			} else {
				id, err = a.registry.AddTask(args[0], glyph.TypeTodo, taskTopic, args[1], taskImportance)
			}
			if err != nil {
				return err
			}
			fmt.Printf("added todo %s (glyph %d)\n", args[0], id)
			return nil
		})
	},
}

var taskGoalCmd = &cobra.Command{
	Use:   "goal <task_id> <text>",
	Short: "Create a new goal task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.registry.AddTask(args[0], glyph.TypeGoal, taskTopic, args[1], taskImportance)
			if err != nil {
				return err
			}
			fmt.Printf("added goal %s (glyph %d)\n", args[0], id)
			return nil
		})
	},
}

func init() {
	addTaskFlags(taskAddCmd)
	addTaskFlags(taskGoalCmd)
}

var (
	taskListTopic  string
	taskListStatus string
	taskListLimit  int
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks ordered by status band, importance, then recency",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			tasks, err := a.registry.List(taskListTopic, taskListStatus, taskListLimit)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Printf("%-20s %-10s %-6s %-15s %s\n", t.TaskID, t.Status, t.Importance, t.Topic, t.Text)
			}
			fmt.Printf("%d task(s)\n", len(tasks))
			return nil
		})
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskListTopic, "topic", "", "filter by topic")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "filter by status (OPEN, IN_PROGRESS, BLOCKED, DONE)")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "maximum results, 0 for unlimited")
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task_id>",
	Short: "Show the current state of one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			t, err := a.registry.Get(args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("no active task %q", args[0])
			}
			fmt.Printf("task_id:    %s\n", t.TaskID)
			fmt.Printf("type:       %s\n", t.Type)
			fmt.Printf("status:     %s\n", t.Status)
			fmt.Printf("importance: %s\n", t.Importance)
			fmt.Printf("topic:      %s\n", t.Topic)
			fmt.Printf("text:       %s\n", t.Text)
			return nil
		})
	},
}

var taskUpdateElevated bool

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task_id> <status>",
	Short: "Transition a task to a new status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			_, err := a.registry.UpdateStatus(args[0], strings.ToUpper(args[1]), taskUpdateElevated)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", args[0], strings.ToUpper(args[1]))
			return nil
		})
	},
}

func init() {
	taskUpdateCmd.Flags().BoolVar(&taskUpdateElevated, "elevated", false, "allow a re-open transition (IN_PROGRESS/BLOCKED -> OPEN)")
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task_id>",
	Short: "Mark a task DONE (requires a prior result glyph with choice=success)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			_, err := a.registry.UpdateStatus(args[0], glyph.StatusDone, false)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> DONE\n", args[0])
			return nil
		})
	},
}

var taskBlockCmd = &cobra.Command{
	Use:   "block <task_id>",
	Short: "Mark a task BLOCKED",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			_, err := a.registry.UpdateStatus(args[0], glyph.StatusBlocked, false)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> BLOCKED\n", args[0])
			return nil
		})
	},
}
