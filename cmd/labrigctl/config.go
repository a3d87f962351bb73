package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the orchestrator's active configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active configuration document",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		text, err := client.ConfigYAML()
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the active configuration document",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.ValidateConfig(); err != nil {
			return err
		}
		fmt.Println(cli.Green("configuration is valid"))
		return nil
	},
}

var configWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the configuration document again each time it changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		var last string
		for {
			text, err := client.ConfigYAML()
			if err != nil {
				return err
			}
			if text != last {
				fmt.Println(cli.Dim("--- " + time.Now().Format(time.RFC3339) + " ---"))
				fmt.Print(text)
				last = text
			}
			time.Sleep(2 * time.Second)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd, configWatchCmd)
}
