package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/cli"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and inspect tasks on a running orchestrator",
}

var taskRunCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Start a task (non-blocking)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.RunTask(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Green("started " + args[0]))
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show a task's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		state, err := client.TaskStatus(args[0])
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

var taskInterruptCmd = &cobra.Command{
	Use:   "interrupt <name>",
	Short: "Request a running task stop at its next checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.InterruptTask(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Yellow("interrupt requested for " + args[0]))
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskRunCmd, taskStatusCmd, taskInterruptCmd)
}
