package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ipu-results/result-engine/internal/domain/credit"
	"github.com/ipu-results/result-engine/internal/infrastructure/persistence/postgres"
	"github.com/ipu-results/result-engine/internal/infrastructure/seed"
	"github.com/ipu-results/result-engine/internal/infrastructure/service"
	"github.com/ipu-results/result-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		source string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import <seed.yaml>",
		Short: "Upsert catalog entries from a YAML seed file",
		Long: `Reads a YAML seed file and upserts every entry into the catalog.
Cached lookups for the imported codes are dropped so the new credits are
served immediately. Use "-" to read the seed from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readSeed(cmd, args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d valid item(s), nothing written\n", len(items))
				return nil
			}
			if source == "" {
				source = filepath.Base(args[0])
			}
			return importItems(cmd, opts, source, items)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "label recorded in the import audit (default: file name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}

func readSeed(cmd *cobra.Command, path string) ([]credit.Item, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	items, err := seed.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

func importItems(cmd *cobra.Command, opts *rootOptions, source string, items []credit.Item) error {
	ctx, cancel := opts.context(cmd)
	defer cancel()
	log := opts.logger(cmd.ErrOrStderr())

	conn, redisURL, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	repo := postgres.NewCreditRepository(conn, nil)

	var invalidator service.CacheInvalidator
	cache, closeCache := openCreditCache(ctx, redisURL, log)
	defer closeCache()
	if cache != nil {
		invalidator = cache
	}

	n, err := service.NewCatalogAdmin(repo, invalidator, log).Upsert(ctx, items)
	if err != nil {
		return err
	}
	if err := repo.RecordImport(ctx, source, n); err != nil {
		log.Warn("import audit not written", logger.Err(err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "upserted %d item(s) from %s\n", n, source)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST COMMAND
// ══════════════════════════════════════════════════════════════════════════════

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		offset int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print catalog entries",
		Long: `Prints catalog entries ordered by paper code. The yaml output is a
seed file that "catalogctl import" accepts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unknown output %q: use table or yaml", output)
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			conn, _, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			repo := postgres.NewCreditRepository(conn, nil)
			items, err := repo.List(ctx, limit, offset)
			if err != nil {
				return err
			}

			if output == "yaml" {
				return seed.Write(cmd.OutOrStdout(), items)
			}
			total, err := repo.Count(ctx)
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), items, total)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func printItems(w io.Writer, items []credit.Item, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tTHEORY\tPRACTICAL\tTOTAL\tNAME")
	for _, it := range items {
		practical := "-"
		if it.Practical != nil {
			practical = strconv.FormatFloat(*it.Practical, 'f', -1, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.PaperCode,
			strconv.FormatFloat(it.Theory, 'f', -1, 64),
			practical,
			strconv.FormatFloat(it.Entry().Total, 'f', -1, 64),
			it.PaperName,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d entries\n", len(items), total)
	return err
}
