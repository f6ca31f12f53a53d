package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipu-results/result-engine/internal/application/query"
	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/domain/record"
	"github.com/ipu-results/result-engine/internal/domain/shared"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// resultsFile is a saved portal response: either the bare row array or an
// object holding the rows and optional manual credits.
type resultsFile struct {
	Results       []record.RawRow         `json:"results"`
	ManualCredits *record.CreditOverrides `json:"manualCredits,omitempty"`
}

func (f *resultsFile) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &f.Results)
	}
	type plain resultsFile
	return json.Unmarshal(data, (*plain)(f))
}

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var (
		creditsFile string
		noFallback  bool
		compact     bool
	)

	cmd := &cobra.Command{
		Use:   "process <results.json>",
		Short: "Build a processed record from saved portal rows",
		Long: `Builds the processed academic record for a saved portal response and
prints it as JSON. Credits come from a YAML seed file when --credits is given,
otherwise from the catalog database. Use "-" to read rows from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readResults(cmd, args[0])
			if err != nil {
				return err
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			var source credit.Source
			if creditsFile != "" {
				items, err := readSeed(cmd, creditsFile)
				if err != nil {
					return err
				}
				source = credit.StaticSource(credit.CatalogOf(items))
			} else {
				conn, _, err := opts.openStore(ctx)
				if err != nil {
					return err
				}
				defer conn.Close()
				source = postgres.NewCreditRepository(conn, nil)
			}

			policy := credit.DefaultPolicy()
			if noFallback {
				policy = credit.DisabledPolicy()
			}

			log := opts.logger(cmd.ErrOrStderr())
			rec, err := query.NewBuildRecordHandler(source, policy, log).Handle(ctx, query.BuildRecordQuery{
				Rows:      in.Results,
				Overrides: in.ManualCredits,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(rec)
		},
	}

	cmd.Flags().StringVar(&creditsFile, "credits", "", "YAML seed file to resolve credits from instead of the database")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "never assume the uniform fallback credit")
	cmd.Flags().BoolVar(&compact, "compact", false, "print the record on one line")
	return cmd
}

func readResults(cmd *cobra.Command, path string) (*resultsFile, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var in resultsFile
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, shared.WrapError("catalogctl", "Process", shared.ErrInvalidFormat,
			fmt.Sprintf("%s is not a results file", path), err)
	}
	return &in, nil
}
