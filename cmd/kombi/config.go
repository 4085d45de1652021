package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/kombi/pkg/config"
	"github.com/ormasoftchile/kombi/pkg/jsonvalue"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write the user configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <group> [name]",
	Short: "Print a value, or every name of a group",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := config.Default()
		w := cmd.OutOrStdout()
		if len(args) == 1 {
			names, err := store.Names(args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(w, name)
			}
			return nil
		}
		v, err := store.Get(args[0], args[1])
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <group> <name> <value>",
	Short: "Store a value; JSON values are decoded, anything else is kept as a string",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Default().Set(args[0], args[1], parseConfigValue(args[2]))
	},
}

var configRemoveCmd = &cobra.Command{
	Use:   "remove <group> <name>",
	Short: "Remove a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Default().Remove(args[0], args[1])
	},
}

func parseConfigValue(raw string) any {
	if v, err := jsonvalue.Decode([]byte(raw)); err == nil {
		return v
	}
	return raw
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configRemoveCmd)

	rootCmd.AddCommand(configCmd)
}
