package main

import (
	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/cli"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Inspect worker threads on a running orchestrator",
}

var threadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered worker threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		rows, err := client.ListThreads()
		if err != nil {
			return err
		}
		t := cli.NewTable("NAME", "RUNNING")
		for _, r := range rows {
			running := "no"
			if r.Running {
				running = "yes"
			}
			t.Row(r.Name, running)
		}
		t.Flush()
		return nil
	},
}

func init() {
	threadCmd.AddCommand(threadListCmd)
}
