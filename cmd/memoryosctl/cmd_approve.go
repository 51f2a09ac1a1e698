package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var approveOperator string

func init() {
	rootCmd.AddCommand(approveCmd, rejectCmd)
	approveCmd.Flags().StringVar(&approveOperator, "operator", "memoryosctl", "operator identity recorded on the decision")
	rejectCmd.Flags().StringVar(&approveOperator, "operator", "memoryosctl", "operator identity recorded on the decision")
}

var approveCmd = &cobra.Command{
	Use:   "approve <pending_id>",
	Short: "Approve a pending dangerous-tier action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid pending_id %q: %w", args[0], err)
		}
		return withApp(func(a *app) error {
			pc, err := a.fw.Approvals().Approve(id, approveOperator)
			if err != nil {
				return err
			}
			fmt.Printf("approved #%d (%s)\n", pc.ID, pc.ActionType)
			return nil
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <pending_id>",
	Short: "Reject a pending dangerous-tier action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid pending_id %q: %w", args[0], err)
		}
		return withApp(func(a *app) error {
			pc, err := a.fw.Approvals().Reject(id, approveOperator)
			if err != nil {
				return err
			}
			fmt.Printf("rejected #%d (%s)\n", pc.ID, pc.ActionType)
			return nil
		})
	},
}
