package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/smazurov/procmgr/internal/config"
	"github.com/spf13/cobra"
)

// CreateConfigCmd creates the config command with its init, add and remove
// subcommands.
func CreateConfigCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Edit the process definitions",
	}
	cmd.PersistentFlags().StringVarP(&dir, "dir", "d", ".", "Directory holding config.json")

	cmd.AddCommand(createConfigInitCmd(&dir))
	cmd.AddCommand(createConfigAddCmd(&dir))
	cmd.AddCommand(createConfigRemoveCmd(&dir))
	return cmd
}

func createConfigInitCmd(dir *string) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty config.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.InitDefinitions(*dir, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", "logs/", "Directory prefix for process logs")
	return cmd
}

func createConfigAddCmd(dir *string) *cobra.Command {
	var tries, triesSleep int

	cmd := &cobra.Command{
		Use:   "add <label> <command line>",
		Short: "Add or replace a process",
		Long: `Adds a process to config.json. The command line is split on single spaces when ` +
			`the process starts; quoting is not interpreted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := config.ProcessEntry{Label: args[0], Script: args[1]}
			if cmd.Flags().Changed("tries") {
				entry.Tries = &tries
			}
			if cmd.Flags().Changed("tries-sleep") {
				entry.TriesSleepMs = &triesSleep
			}
			path := filepath.Join(*dir, config.DefinitionsFile)
			if err := config.AddProcess(path, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", entry.Label, path)
			return nil
		},
	}
	cmd.Flags().IntVar(&tries, "tries", config.DefaultTries, "Restart attempts, -1 for unlimited")
	cmd.Flags().IntVar(&triesSleep, "tries-sleep", int(config.DefaultTriesSleep.Milliseconds()), "Delay before a restart in milliseconds")
	return cmd
}

func createConfigRemoveCmd(dir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <label>",
		Short: "Remove a process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(*dir, config.DefinitionsFile)
			removed, err := config.RemoveProcess(path, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("process %q not found in %s", args[0], path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[0], path)
			return nil
		},
	}
}
