package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Append attempt/result/lesson glyphs, or read a task's history",
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logAttemptCmd, logResultCmd, logLessonCmd, logHistoryCmd)
}

var logSource string

func init() {
	logAttemptCmd.Flags().StringVar(&logSource, "source", "memoryosctl", "write source tag")
}

var logAttemptCmd = &cobra.Command{
	Use:   "attempt <task_id> <text>",
	Short: "Record an attempt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.registry.LogAttempt(args[0], args[1], logSource)
			if err != nil {
				return err
			}
			fmt.Printf("logged attempt for %s (glyph %d)\n", args[0], id)
			return nil
		})
	},
}

var (
	logResultSuccess bool
	logResultMetric  string
)

var logResultCmd = &cobra.Command{
	Use:   "result <task_id> <text>",
	Short: "Record a result, success or failure",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.registry.LogResult(args[0], logResultSuccess, args[1], logResultMetric, logSource)
			if err != nil {
				return err
			}
			fmt.Printf("logged result for %s (glyph %d)\n", args[0], id)
			return nil
		})
	},
}

func init() {
	logResultCmd.Flags().BoolVar(&logResultSuccess, "success", false, "mark the result a success (default failure)")
	logResultCmd.Flags().StringVar(&logResultMetric, "metric", "", "structured metric string")
}

var logLessonTopic string

var logLessonCmd = &cobra.Command{
	Use:   "lesson <task_id> <text>",
	Short: "Record a lesson, optionally linked to a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			id, err := a.registry.LogLesson(args[0], logLessonTopic, args[1], logSource)
			if err != nil {
				return err
			}
			fmt.Printf("logged lesson for %s (glyph %d)\n", args[0], id)
			return nil
		})
	},
}

func init() {
	logLessonCmd.Flags().StringVar(&logLessonTopic, "topic", "", "lesson topic")
}

var logHistoryCmd = &cobra.Command{
	Use:   "history <task_id>",
	Short: "Show the chronological attempt/result/lesson/phase history for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			glyphs, err := a.registry.History(args[0])
			if err != nil {
				return err
			}
			for _, g := range glyphs {
				fmt.Printf("%s  %-8s %-10s %s\n", g.Timestamp.Format("2006-01-02T15:04:05"), g.Type, g.Choice, g.Text)
			}
			fmt.Printf("%d entries\n", len(glyphs))
			return nil
		})
	},
}
