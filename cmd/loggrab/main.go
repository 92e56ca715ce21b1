// Package main provides the loggrab CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/user/loggrab/internal/config"
	"github.com/user/loggrab/internal/grab"
	"github.com/user/loggrab/internal/search"
	"github.com/user/loggrab/internal/session"
	"github.com/user/loggrab/internal/source"
)

var (
	// Global flags
	formatFlag string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loggrab",
		Short: "Index huge log streams and pull out arbitrary row ranges",
		Long: `loggrab ingests log streams (plain text or DLT binary) from files,
processes, or network endpoints, builds a persistent row index, and serves
row-range chunks, searches, and exports without loading the stream into
memory.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Row framing: text or dlt")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output")

	rootCmd.AddCommand(grabCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(tailCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// indexFile opens a session, observes path to completion, and returns the
// session ready for reads. The caller owns Close.
func indexFile(ctx context.Context, path string) (*session.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	sess, err := session.New(cfg, source.Format(formatFlag))
	if err != nil {
		return nil, err
	}
	op, err := sess.Observe(ctx, source.DataSource{
		Kind:   source.KindFile,
		Format: source.Format(formatFlag),
		Path:   path,
	})
	if err != nil {
		sess.Close()
		return nil, err
	}
	select {
	case <-op.Done():
	case <-ctx.Done():
		sess.Abort(op.ID())
	}
	if err := op.Err(); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func grabCmd() *cobra.Command {
	var from, to int

	cmd := &cobra.Command{
		Use:   "grab [file]",
		Short: "Print the rows of an inclusive range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := indexFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			if !cmd.Flags().Changed("to") {
				to = sess.RowCount() - 1
			}
			rows, err := sess.Grab(grab.Range{From: from, To: to})
			if err != nil {
				return err
			}
			width := sess.Rank()
			for _, row := range rows {
				fmt.Printf("%*d  %s\n", width, row.Position, row.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "First row of the range")
	cmd.Flags().IntVar(&to, "to", 0, "Last row of the range, inclusive (default last row)")
	return cmd
}

func searchCmd() *cobra.Command {
	var ignoreCase, word, plain bool

	cmd := &cobra.Command{
		Use:   "search [file] [pattern]",
		Short: "Print the positions of rows matching a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := indexFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			filters := []search.Filter{{
				Value:      args[1],
				IsRegex:    !plain,
				IgnoreCase: ignoreCase,
				WholeWord:  word,
			}}
			matches, err := sess.Search(cmd.Context(), filters)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Println(m.Position)
			}
			fmt.Fprintf(os.Stderr, "%d of %d rows matched\n", len(matches), sess.RowCount())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&ignoreCase, "ignore-case", "i", false, "Case-insensitive matching")
	cmd.Flags().BoolVarP(&word, "word", "w", false, "Whole-word matching")
	cmd.Flags().BoolVar(&plain, "plain", false, "Treat pattern as a literal, not a regex")
	return cmd
}

func exportCmd() *cobra.Command {
	var rangesFlag, out string
	var raw bool

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export row ranges as normalized text or original raw bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges, err := parseRanges(rangesFlag)
			if err != nil {
				return err
			}
			sess, err := indexFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			dst := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				dst = f
			}

			var complete bool
			if raw {
				if !sess.RawAvailable() {
					return fmt.Errorf("raw bytes are not retrievable for this source")
				}
				complete, err = sess.ExportRaw(cmd.Context(), dst, ranges)
			} else {
				complete, err = sess.ExportText(cmd.Context(), dst, ranges)
			}
			if err != nil {
				return err
			}
			if !complete {
				fmt.Fprintln(os.Stderr, "warning: requested ranges exceeded the indexed rows")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rangesFlag, "ranges", "", "Comma-separated inclusive ranges, e.g. 0-99,500-509")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination path (default stdout)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Export original raw bytes instead of text")
	return cmd
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [file]",
		Short: "Detect the timestamp format of a log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := indexFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			spec, err := sess.DiscoverFormat(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(spec)
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the config file location and effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			fmt.Printf("config file:      %s\n", config.GetConfigPath())
			fmt.Printf("streams_dir:      %s\n", cfg.Ingest.StreamsDir)
			fmt.Printf("poll_interval_ms: %d\n", cfg.Ingest.PollIntervalMs)
			fmt.Printf("sample_rows:      %d\n", cfg.Discovery.SampleRows)
			fmt.Printf("min_confidence:   %g\n", cfg.Discovery.MinConfidence)
			fmt.Printf("database_path:    %s\n", cfg.Storage.DatabasePath)
			return nil
		},
	}
}

func tailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail [file]",
		Short: "Follow a growing file and print new rows as they are indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			sess, err := session.New(cfg, source.Format(formatFlag))
			if err != nil {
				return err
			}
			defer sess.Close()

			sub := sess.Subscribe(64)
			defer sub.Close()

			op, err := sess.Observe(ctx, source.DataSource{
				Kind:   source.KindFile,
				Format: source.Format(formatFlag),
				Path:   args[0],
				Follow: true,
			})
			if err != nil {
				return err
			}

			printed := 0
			for {
				select {
				case <-ctx.Done():
					sess.Abort(op.ID())
					return nil
				case ev, ok := <-sub.C:
					if !ok {
						return nil
					}
					if ev.Kind != session.RowsUpdated {
						continue
					}
					for ; printed < ev.Count; printed++ {
						rows, err := sess.Grab(grab.Range{From: printed, To: printed})
						if err != nil {
							return err
						}
						for _, row := range rows {
							fmt.Printf("%s\n", row.Content)
						}
					}
				}
			}
		},
	}
	return cmd
}

// parseRanges turns "0-99,500-509" into inclusive ranges. A bare number is
// a single-row range.
func parseRanges(s string) ([]grab.Range, error) {
	if s == "" {
		return nil, fmt.Errorf("no ranges given; use --ranges")
	}
	var out []grab.Range
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		from, to, found := strings.Cut(part, "-")
		a, err := strconv.Atoi(from)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: %w", part, err)
		}
		b := a
		if found {
			if b, err = strconv.Atoi(to); err != nil {
				return nil, fmt.Errorf("invalid range %q: %w", part, err)
			}
		}
		out = append(out, grab.Range{From: a, To: b})
	}
	return out, nil
}
