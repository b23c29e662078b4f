package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/smazurov/procmgr/internal/config"
	"github.com/smazurov/procmgr/internal/process"
	"github.com/spf13/cobra"
)

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the process definitions",
		Long: `Loads <dir>/config.json the way the supervisor does and prints every process ` +
			`with its command line, argument vector and retry policy. Exits non-zero if the document does not load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := config.LoadDefinitions(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			printDefinitions(cmd.OutOrStdout(), defs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory holding config.json")
	return cmd
}

func printDefinitions(out io.Writer, defs *config.Definitions) {
	fmt.Fprintf(out, "outDir: %s\n", defs.OutDir)
	fmt.Fprintf(out, "defaults: tries=%d triesSleep=%dms\n", defs.Tries, defs.TriesSleep.Milliseconds())
	fmt.Fprintf(out, "processes: %d\n\n", len(defs.Processes))
	if len(defs.Processes) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tTRIES\tSLEEP\tLOG\tARGV")
	for _, def := range defs.Processes {
		tries := fmt.Sprint(def.MaxTries)
		if def.MaxTries < 0 {
			tries = "unlimited"
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\t%q\n",
			def.Label, tries, def.TriesSleep.Milliseconds(), defs.LogPath(def.Label), process.Tokenize(def.Script))
	}
	w.Flush()
}
