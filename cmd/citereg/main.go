package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/adapter"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/city"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/config"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/metrics"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/registry"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/schema"
	"github.com/Ghostmonday/FightSFTickets-sub001/pkg/store"
)

var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "citereg",
		Short: "City registry and citation matcher for parking appeals",
		Long: `citereg loads per-city parking citation configuration, in canonical or
legacy form, and answers which city and agency issued a citation number,
where its appeal is mailed and by when.

Every file in the cities directory is read; legacy records are adapted to
the canonical schema and every adaptation decision is reported.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().String("cities", "", "Cities directory (overrides cities_dir)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(loadCmd())
	root.AddCommand(matchCmd())
	root.AddCommand(citiesCmd())
	root.AddCommand(showCmd())
	root.AddCommand(adaptCmd())
	root.AddCommand(indexCmd())
	root.AddCommand(watchCmd())

	return root
}

// setup loads configuration, applies command-line overrides and installs the
// configured logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	citiesDir, _ := cmd.Flags().GetString("cities")

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		return nil, nil, err
	}
	if citiesDir != "" {
		cfg.CitiesDir = citiesDir
	}

	logger, err := cfg.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newRegistry(cfg *config.Config, logger *slog.Logger, opts ...registry.Option) *registry.Registry {
	opts = append([]registry.Option{
		registry.WithLogger(logger),
		registry.WithAdapterOptions(cfg.AdapterOptions()),
		registry.WithDebounce(cfg.WatchDebounce),
	}, opts...)
	return registry.New(store.DirSource{Dir: cfg.CitiesDir}, opts...)
}

// loadRegistry builds a registry from configuration and loads it once.
func loadRegistry(cmd *cobra.Command) (*registry.Registry, *store.LoadReport, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	reg := newRegistry(cfg, logger)
	report, err := reg.Load(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return reg, report, nil
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the cities directory and print the load report",
		Long: `Load every document in the cities directory and report what happened:
cities loaded, documents adapted from the legacy schema, and every
configuration problem found.

Examples:
  citereg load --cities ./cities
  citereg load --notes
  citereg load --strict --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			strict, _ := cmd.Flags().GetBool("strict")
			showNotes, _ := cmd.Flags().GetBool("notes")

			_, report, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if formatStr == "json" {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report, showNotes)
			}

			if strict && report.HasProblems() {
				return fmt.Errorf("%d configuration problem(s) found", len(report.Problems))
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	cmd.Flags().Bool("strict", false, "Exit non-zero when any problem is found")
	cmd.Flags().Bool("notes", false, "Print adaptation notes for legacy cities")

	return cmd
}

func printReport(w io.Writer, report *store.LoadReport, showNotes bool) {
	fmt.Fprintln(w, report.String())
	if len(report.Problems) > 0 {
		fmt.Fprintln(w, "\nProblems:")
		for _, p := range report.Problems {
			where := p.Source
			if p.CityID != "" {
				where += " (" + p.CityID + ")"
			}
			fmt.Fprintf(w, "  %-24s %s\n      %v\n", p.Kind, where, p.Err)
			if showNotes {
				for _, n := range p.Notes {
					fmt.Fprintf(w, "      %s\n", n)
				}
			}
		}
	}
	if showNotes && len(report.Notes) > 0 {
		fmt.Fprintln(w, "\nAdaptation notes:")
		for _, id := range report.Cities {
			notes := report.Notes[id]
			if len(notes) == 0 {
				continue
			}
			fmt.Fprintf(w, "  %s\n", id)
			for _, n := range notes {
				fmt.Fprintf(w, "    %s\n", n)
			}
		}
	}
}

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <citation>",
		Short: "Identify the city and agency that issued a citation",
		Long: `Match a citation number against every loaded city and print the
resulting appeal policy.

Examples:
  citereg match 912345678
  citereg match "LA 1234 5678" --date 2024-01-01
  citereg match 12345678 --explain`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			dateStr, _ := cmd.Flags().GetString("date")
			explain, _ := cmd.Flags().GetBool("explain")

			var violation *city.Date
			if dateStr != "" {
				d, err := city.ParseDate(dateStr)
				if err != nil {
					return err
				}
				violation = &d
			}

			reg, _, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if explain {
				ex := reg.Explain(args[0])
				if formatStr == "json" {
					return writeJSON(out, ex)
				}
				fmt.Fprint(out, ex.String())
				return nil
			}

			res, bundle, err := reg.Lookup(args[0], violation)
			if err != nil {
				return err
			}
			if formatStr == "json" {
				return writeJSON(out, map[string]any{"match": res, "policy": bundle})
			}

			if !res.Matched {
				fmt.Fprintf(out, "Citation %q not recognized (%s)\n", args[0], res.Reason)
				return nil
			}
			fmt.Fprintf(out, "City:        %s\n", res.CityID)
			fmt.Fprintf(out, "Section:     %s\n", res.SectionID)
			fmt.Fprintf(out, "Pattern:     %s (specificity %d, confidence %.2f)\n",
				res.PatternUsed, res.Specificity, res.ConfidenceScore)
			if bundle.MailingAddress != nil {
				fmt.Fprintf(out, "Mail appeal: %s (%s address)\n", bundle.MailingAddress, bundle.AddressSource)
			}
			if !bundle.CanAutoMail() {
				fmt.Fprintln(out, "Warning:     mailing address incomplete, do not mail automatically")
			}
			if bundle.PhoneConfirmationRequired {
				fmt.Fprintf(out, "Phone:       confirmation required. %s\n", bundle.PhoneConfirmationMessage)
			}
			if bundle.AppealDeadlineDate != nil {
				fmt.Fprintf(out, "Deadline:    %s (%d days remaining)\n", bundle.AppealDeadlineDate, *bundle.DaysRemaining)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	cmd.Flags().String("date", "", "Violation date (YYYY-MM-DD)")
	cmd.Flags().Bool("explain", false, "List every pattern that matches, winner first")

	return cmd
}

func citiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities",
		Short: "List loaded cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			state, _ := cmd.Flags().GetString("state")

			reg, _, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			cities := reg.Cities()
			if state != "" {
				cities = reg.CitiesByState(state)
			}

			out := cmd.OutOrStdout()
			if formatStr == "json" {
				return writeJSON(out, cities)
			}
			if len(cities) == 0 {
				fmt.Fprintln(out, "No cities loaded.")
				return nil
			}

			fmt.Fprintf(out, "%-28s %-22s %-6s %-10s %8s %8s\n",
				"CITY_ID", "NAME", "STATE", "LEVEL", "PATTERNS", "DEADLINE")
			fmt.Fprintln(out, strings.Repeat("-", 88))
			for _, c := range cities {
				fmt.Fprintf(out, "%-28s %-22s %-6s %-10s %8d %7dd\n",
					truncateString(c.CityID, 28),
					truncateString(c.Name, 22),
					c.State,
					c.Jurisdiction,
					len(c.CitationPatterns),
					c.AppealDeadlineDays,
				)
			}
			fmt.Fprintf(out, "\n%d city(ies)\n", len(cities))
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().String("state", "", "Filter by two-letter state code")

	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <city_id>",
		Short: "Print one city's canonical record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")

			reg, report, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			c, ok := reg.GetCity(args[0])
			if !ok {
				return fmt.Errorf("city %q not loaded (%d cities available)", args[0], report.Loaded)
			}
			return writeRecord(cmd.OutOrStdout(), formatStr, c)
		},
	}

	cmd.Flags().StringP("format", "f", "json", "Output format (json, yaml)")

	return cmd
}

func adaptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapt <file>",
		Short: "Convert a legacy city file to the canonical schema",
		Long: `Classify a city configuration file and, if it uses the legacy schema,
print its canonical form. Adaptation notes go to stderr.

Examples:
  citereg adapt cities/la.json > cities/us-ca-los_angeles.json
  citereg adapt legacy/oakland.json --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			cfgPath, _ := cmd.Flags().GetString("config")
			envFile, _ := cmd.Flags().GetString("env-file")

			cfg, err := config.Load(cfgPath, envFile)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			doc := schema.Classify(args[0], data)
			var c *city.City
			switch doc.Kind {
			case schema.KindCanonical:
				c = doc.Canonical
				fmt.Fprintln(cmd.ErrOrStderr(), "already canonical")
			case schema.KindLegacy:
				var notes []adapter.Note
				c, notes, err = adapter.New(cfg.AdapterOptions()).Adapt(doc.Legacy)
				if err != nil {
					return err
				}
				for _, n := range notes {
					fmt.Fprintln(cmd.ErrOrStderr(), n)
				}
			default:
				return fmt.Errorf("%s is %s: %w", args[0], doc.Kind, doc.Err)
			}

			if err := city.Validate(c); err != nil {
				return fmt.Errorf("adapted record is invalid: %w", err)
			}
			return writeRecord(cmd.OutOrStdout(), formatStr, c)
		},
	}

	cmd.Flags().StringP("format", "f", "json", "Output format (json, yaml)")

	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Print the pattern index in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			cityID, _ := cmd.Flags().GetString("city")

			reg, _, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			idx := reg.Snapshot().Index()
			entries := idx.Entries()
			if cityID != "" {
				entries = idx.ForCity(cityID)
			}

			out := cmd.OutOrStdout()
			if formatStr == "json" {
				return writeJSON(out, entries)
			}
			fmt.Fprintf(out, "%4s %-28s %-16s %4s %5s  %s\n", "#", "CITY_ID", "SECTION", "SPEC", "CONF", "PATTERN")
			fmt.Fprintln(out, strings.Repeat("-", 88))
			for i, e := range entries {
				fmt.Fprintf(out, "%4d %-28s %-16s %4d %5.2f  %s\n",
					i+1, truncateString(e.CityID, 28), truncateString(e.SectionID, 16),
					e.Specificity, e.ConfidenceScore, e.Pattern)
			}
			return nil
		},
	}

	cmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	cmd.Flags().String("city", "", "Only show one city's patterns")

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load the cities directory and reload it on every change",
		Long: `Load the cities directory, then watch it and reload whenever a file is
created, changed or removed. When metrics_addr is set, /metrics, /healthz
and /report are served on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				cfg.MetricsAddr = addr
			}

			var opts []registry.Option
			if cfg.MetricsAddr != "" {
				opts = append(opts, registry.WithMetrics(metrics.New(prometheus.DefaultRegisterer)))
			}
			reg := newRegistry(cfg, logger, opts...)

			if _, err := reg.Load(ctx); err != nil {
				return err
			}
			if err := reg.Watch(ctx); err != nil {
				return err
			}

			if cfg.MetricsAddr != "" {
				return serveOps(ctx, cfg.MetricsAddr, reg, logger)
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().String("metrics-addr", "", "Serve /metrics on this address (overrides metrics_addr)")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeRecord(w io.Writer, formatStr string, c *city.City) error {
	switch formatStr {
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(c); err != nil {
			return err
		}
		return encoder.Close()
	case "json":
		return writeJSON(w, c)
	default:
		return fmt.Errorf("unknown format %q (json, yaml)", formatStr)
	}
}

func truncateString(inputStr string, maxLength int) string {
	if len(inputStr) <= maxLength {
		return inputStr
	}
	return inputStr[:maxLength-3] + "..."
}
