package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/cli"
	"github.com/labrig-project/labrig/pkg/module"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Inspect and control modules on a running orchestrator",
}

var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remote-visible modules",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		rows, err := client.ListModules()
		if err != nil {
			return err
		}
		t := cli.NewTable("NAME", "BASE", "STATE", "REMOTE")
		for _, r := range rows {
			remoteFlag := "no"
			if r.AllowRemote {
				remoteFlag = "yes"
			}
			t.Row(r.Name, r.Base, cli.StateColor(r.State), remoteFlag)
		}
		t.Flush()
		return nil
	},
}

var moduleActivateCmd = &cobra.Command{
	Use:   "activate <name>",
	Short: "Activate a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.ActivateModule(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Green("activated " + args[0]))
		return nil
	},
}

var moduleDeactivateCmd = &cobra.Command{
	Use:   "deactivate <name>",
	Short: "Deactivate a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.DeactivateModule(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Green("deactivated " + args[0]))
		return nil
	},
}

var moduleReloadCmd = &cobra.Command{
	Use:   "reload <name>",
	Short: "Reload a module (reconnect if remote)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.DeactivateModule(args[0]); err != nil {
			return err
		}
		if err := client.ActivateModule(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Green("reloaded " + args[0]))
		return nil
	},
}

var moduleInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show detailed state for one module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		info, err := client.ModuleInfo(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("state:        %s\n", info.State)
		fmt.Printf("has appdata:  %v\n", info.HasAppdata)
		fmt.Printf("allow remote: %v\n", info.AllowRemote)
		return nil
	},
}

var moduleAttrCmd = &cobra.Command{
	Use:   "attr",
	Short: "Read and write a module's status variables over the remote transport",
}

var moduleAttrGetCmd = &cobra.Command{
	Use:   "get <name> <attr>",
	Short: "Print one status variable",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		v, err := client.GetAttribute(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(v.Scalar)
		return nil
	},
}

var moduleAttrSetCmd = &cobra.Command{
	Use:   "set <name> <attr> <value>",
	Short: "Set a status variable to a string value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		v := module.RemoteValue{Kind: module.RemoteScalar, Scalar: appdata.String(args[2])}
		if err := client.SetAttribute(args[0], args[1], v); err != nil {
			return err
		}
		fmt.Println(cli.Green(fmt.Sprintf("set %s on %s", args[1], args[0])))
		return nil
	},
}

var moduleAttrDelCmd = &cobra.Command{
	Use:   "del <name> <attr>",
	Short: "Clear one status variable, restoring its declared default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.DelAttribute(args[0], args[1]); err != nil {
			return err
		}
		fmt.Println(cli.Green(fmt.Sprintf("cleared %s on %s", args[1], args[0])))
		return nil
	},
}

var moduleClearAppdataCmd = &cobra.Command{
	Use:   "clear-appdata <name>",
	Short: "Clear a deactivated module's persisted status variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, _, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.ClearAppdata(args[0]); err != nil {
			return err
		}
		fmt.Println(cli.Green("cleared appdata for " + args[0]))
		return nil
	},
}

func init() {
	moduleAttrCmd.AddCommand(moduleAttrGetCmd, moduleAttrSetCmd, moduleAttrDelCmd)
	moduleCmd.AddCommand(moduleListCmd, moduleInfoCmd, moduleActivateCmd, moduleDeactivateCmd, moduleReloadCmd, moduleClearAppdataCmd, moduleAttrCmd)
}
