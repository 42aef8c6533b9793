package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"assetline/internal/app"
	"assetline/internal/config"
	"assetline/internal/dashboard"
	"assetline/internal/db"
	"assetline/internal/display"
	"assetline/internal/engine"
	"assetline/internal/migrate"
	"assetline/internal/repo"
	"assetline/internal/server"
	"assetline/internal/track"
)

var rootCmd = &cobra.Command{
	Use:   "al",
	Short: "Assetline CLI",
	Long: `Assetline manages a distressed residential loan portfolio from intake to exit.
Core concepts:
- Workspace: the directory holding the sqlite database; firm settings live in assetline.yml.
- Asset hub: one property/loan, keyed by a numeric hub id shared across every module.
- Outcome tracks: up to six per asset (deed-in-lieu, foreclosure, REO, short sale, modification, note sale); a track appears on the dashboard once its outcome exists.
- Tasks: stage checkpoints per track (REO runs eviction -> trashout -> renovation -> marketing -> under contract -> sold).
- Offers: bids per sale channel; accepting one locks out a second accepted offer on the same asset and channel.
- Scopes: trashout and renovation work orders with vendor and cost.
- Notes and follow-ups: the asset diary, with due dates and assignees.
- Event log: every mutation is recorded; view with 'al log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ASSETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("default-hub", "ASSETLINE_DEFAULT_HUB")
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Int64("hub", 0, "asset hub id (overrides ASSETLINE_DEFAULT_HUB)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("hub", rootCmd.PersistentFlags().Lookup("hub"))
}

func registerCommands() {
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(outcomeCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(offerCmd())
	rootCmd.AddCommand(scopeCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(brokerCmd())
	rootCmd.AddCommand(valuationCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(keyCmd())
}

func assetCmd() *cobra.Command {
	asset := &cobra.Command{
		Use:   "asset",
		Short: "Manage assets",
		Long:  "Assets are the properties and loans in the portfolio. Every other record hangs off an asset's hub id.",
	}
	asset.AddCommand(assetCreateCmd())
	asset.AddCommand(assetListCmd())
	asset.AddCommand(assetShowCmd())
	asset.AddCommand(assetUpdateCmd())
	asset.AddCommand(assetDeleteCmd())
	asset.AddCommand(assetUseCmd())
	asset.AddCommand(assetImportCmd())
	return asset
}

func assetCreateCmd() *cobra.Command {
	var opts engine.AssetCreateOptions
	var upb, totalDebt, deferred, asIs, arv string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			var err error
			if opts.UPB, err = parseMoney(upb); err != nil {
				return err
			}
			if opts.TotalDebt, err = parseMoney(totalDebt); err != nil {
				return err
			}
			if opts.DeferredBalance, err = parseMoney(deferred); err != nil {
				return err
			}
			if opts.AsIsValue, err = parseMoney(asIs); err != nil {
				return err
			}
			if opts.ARVValue, err = parseMoney(arv); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Address, "address", "", "street address")
	cmd.Flags().StringVar(&opts.City, "city", "", "city")
	cmd.Flags().StringVar(&opts.State, "state", "", "state")
	cmd.Flags().StringVar(&opts.Zip, "zip", "", "zip code")
	cmd.Flags().StringVar(&opts.PropertyType, "property-type", "", "property type")
	cmd.Flags().StringVar(&opts.LoanNumber, "loan-number", "", "loan number")
	cmd.Flags().StringVar(&opts.BorrowerName, "borrower", "", "borrower name")
	cmd.Flags().StringVar(&upb, "upb", "", "unpaid principal balance")
	cmd.Flags().StringVar(&totalDebt, "total-debt", "", "total debt")
	cmd.Flags().StringVar(&deferred, "deferred-balance", "", "deferred balance")
	cmd.Flags().StringVar(&asIs, "as-is-value", "", "as-is value")
	cmd.Flags().StringVar(&arv, "arv-value", "", "after-repair value")
	cmd.Flags().StringVar(&opts.DelinquencyStatus, "delinquency", "", "delinquency bucket (current, 30, 60, 90, 120_plus)")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func assetListCmd() *cobra.Command {
	var f repo.AssetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAssets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Hub", "Address", "City", "State", "UPB", "Delinquency"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.HubID, a.Address, a.City, a.State, display.NullCurrency(a.UPB), track.DelinquencyBadge(a.DelinquencyStatus).Label})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	cmd.Flags().StringVar(&f.PropertyType, "property-type", "", "property type filter")
	cmd.Flags().StringVar(&f.DelinquencyStatus, "delinquency", "", "delinquency filter")
	return cmd
}

func assetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <hub-id>",
		Short: "Show an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := parseHubArg(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAsset(ctx, hub)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func assetUpdateCmd() *cobra.Command {
	var address, city, state, zip, propertyType, loanNumber, borrower, delinquency string
	var upb, totalDebt, deferred, asIs, arv string
	cmd := &cobra.Command{
		Use:   "update <hub-id>",
		Short: "Update an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := parseHubArg(args[0])
			if err != nil {
				return err
			}
			opts := engine.AssetUpdateOptions{HubID: hub, ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("address") {
				opts.Address = &address
			}
			if cmd.Flags().Changed("city") {
				opts.City = &city
			}
			if cmd.Flags().Changed("state") {
				opts.State = &state
			}
			if cmd.Flags().Changed("zip") {
				opts.Zip = &zip
			}
			if cmd.Flags().Changed("property-type") {
				opts.PropertyType = &propertyType
			}
			if cmd.Flags().Changed("loan-number") {
				opts.LoanNumber = &loanNumber
			}
			if cmd.Flags().Changed("borrower") {
				opts.BorrowerName = &borrower
			}
			if cmd.Flags().Changed("delinquency") {
				opts.DelinquencyStatus = &delinquency
			}
			if opts.UPB, err = moneyPtr(cmd, "upb", upb); err != nil {
				return err
			}
			if opts.TotalDebt, err = moneyPtr(cmd, "total-debt", totalDebt); err != nil {
				return err
			}
			if opts.DeferredBalance, err = moneyPtr(cmd, "deferred-balance", deferred); err != nil {
				return err
			}
			if opts.AsIsValue, err = moneyPtr(cmd, "as-is-value", asIs); err != nil {
				return err
			}
			if opts.ARVValue, err = moneyPtr(cmd, "arv-value", arv); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "street address")
	cmd.Flags().StringVar(&city, "city", "", "city")
	cmd.Flags().StringVar(&state, "state", "", "state")
	cmd.Flags().StringVar(&zip, "zip", "", "zip code")
	cmd.Flags().StringVar(&propertyType, "property-type", "", "property type")
	cmd.Flags().StringVar(&loanNumber, "loan-number", "", "loan number")
	cmd.Flags().StringVar(&borrower, "borrower", "", "borrower name")
	cmd.Flags().StringVar(&upb, "upb", "", "unpaid principal balance (empty clears)")
	cmd.Flags().StringVar(&totalDebt, "total-debt", "", "total debt (empty clears)")
	cmd.Flags().StringVar(&deferred, "deferred-balance", "", "deferred balance (empty clears)")
	cmd.Flags().StringVar(&asIs, "as-is-value", "", "as-is value (empty clears)")
	cmd.Flags().StringVar(&arv, "arv-value", "", "after-repair value (empty clears)")
	cmd.Flags().StringVar(&delinquency, "delinquency", "", "delinquency bucket")
	return cmd
}

func assetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <hub-id>",
		Short: "Delete an asset and everything attached to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := parseHubArg(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAsset(ctx, hub, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func assetUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <hub-id>",
		Short: "Set the default asset hub for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := parseHubArg(args[0])
			if err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			if err := setEnvValue(filepath.Join(workspace, ".env"), "ASSETLINE_DEFAULT_HUB", strconv.FormatInt(hub, 10)); err != nil {
				return err
			}
			fmt.Printf("Set ASSETLINE_DEFAULT_HUB=%d in %s/.env\n", hub, workspace)
			return nil
		},
	}
	return cmd
}

func assetImportCmd() *cobra.Command {
	var file string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import assets from a servicer tape",
		Long: "Reads a JSON array of raw tape rows. Rows may mix snake_case and camelCase\n" +
			"keys; each row is normalized once at this boundary before anything else sees\n" +
			"it. Money fields accept bare numbers or strings like \"$143,250.00\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var rows []map[string]any
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("tape %s: %w", file, err)
			}
			if dryRun {
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Address", "City", "State", "UPB", "Total Debt", "As-Is", "Delinquency"})
				for _, row := range rows {
					tw.AppendRow(table.Row{
						display.Resolve(row, nil, "address", ""),
						display.Resolve(row, nil, "city", ""),
						display.Resolve(row, nil, "state", ""),
						display.CurrencyCell(row, nil, "upb"),
						display.CurrencyCell(row, nil, "total_debt"),
						display.CurrencyCell(row, nil, "as_is_value"),
						display.Resolve(row, nil, "delinquency_status", ""),
					})
				}
				tw.Render()
				fmt.Printf("%d rows; rerun without --dry-run to import\n", len(rows))
				return nil
			}
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created := make([]int64, 0, len(rows))
				for i, row := range rows {
					a := display.Normalize(row, nil)
					if a.Address == "" {
						return fmt.Errorf("row %d: missing address", i+1)
					}
					made, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
						Address:           a.Address,
						City:              a.City,
						State:             a.State,
						Zip:               a.Zip,
						PropertyType:      a.PropertyType,
						LoanNumber:        a.LoanNumber,
						BorrowerName:      a.BorrowerName,
						UPB:               a.UPB,
						TotalDebt:         a.TotalDebt,
						DeferredBalance:   a.DeferredBalance,
						AsIsValue:         a.AsIsValue,
						ARVValue:          a.ARVValue,
						DelinquencyStatus: a.DelinquencyStatus,
						ActorID:           actorID,
					})
					if err != nil {
						return fmt.Errorf("row %d: %w", i+1, err)
					}
					created = append(created, made.HubID)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"imported": len(created), "hub_ids": created})
				}
				fmt.Printf("Imported %d assets\n", len(created))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to JSON tape file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview rows without importing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect firm config",
		Long:  "Config is the firm rulebook stored in assetline.yml: firm identity, server defaults, auth, RBAC roles, team grants, and webhooks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), "")
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate assetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var firm string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter assetline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(firm)), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&firm, "firm", "assetline", "firm id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import firm config from YAML into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			if err := os.WriteFile(config.Path(viper.GetString("workspace")), data, 0o644); err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the dashboard for one asset",
		Long:  "The hub view: asset summary, outcome track cards with their latest task, plus offers, scopes, notes, and assignments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := dashboard.Build(ctx, e.Repo, hub)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				renderHubView(view)
				return nil
			})
		},
	}
	return cmd
}

func renderHubView(view dashboard.HubView) {
	s := view.Summary
	fmt.Printf("Asset %d: %s\n", s.HubID, s.AddressLine)
	if s.BorrowerName != "" || s.LoanNumber != "" {
		fmt.Printf("Borrower: %s  Loan: %s\n", s.BorrowerName, s.LoanNumber)
	}
	if s.Delinquency.Label != "" {
		fmt.Printf("Delinquency: %s\n", s.Delinquency.Label)
	}
	fmt.Printf("UPB %s | Total debt %s | Deferred %s | As-is %s | ARV %s\n",
		s.UPB, s.TotalDebt, s.DeferredBalance, s.AsIsValue, s.ARVValue)
	if s.BPOAsIs != nil {
		fmt.Printf("BPO as-is %s (as of %s)\n", s.BPOAsIs.Value, s.BPOAsIs.AsOf)
	}
	if s.BPOARV != nil {
		fmt.Printf("BPO ARV %s (as of %s)\n", s.BPOARV.Value, s.BPOARV.AsOf)
	}
	if s.Appraisal != nil {
		fmt.Printf("Appraisal %s (as of %s)\n", s.Appraisal.Value, s.Appraisal.AsOf)
	}
	if len(view.Cards) == 0 {
		fmt.Println("No outcome tracks yet; start one with 'al outcome ensure <track>'")
	} else {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Track", "Status", "Open", "Done", "Latest Task"})
		for _, c := range view.Cards {
			latest := "-"
			if c.Latest != nil {
				latest = fmt.Sprintf("%s [%s]", c.LatestBadge.Label, c.Latest.Status)
			}
			tw.AppendRow(table.Row{c.Label, c.Status, c.OpenTasks, c.DoneTasks, latest})
		}
		tw.Render()
	}
	if len(view.Offers) > 0 {
		fmt.Println("Offers:")
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Source", "Status", "Price", "Buyer"})
		for _, o := range view.Offers {
			tw.AppendRow(table.Row{o.ID, track.OfferSourceBadge(o.Source).Label, track.OfferStatusBadge(o.Status).Label, display.Currency(o.Price), o.BuyerName})
		}
		tw.Render()
	}
	if len(view.Scopes) > 0 {
		fmt.Println("Scopes:")
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Task", "Description", "Cost", "Completed"})
		for _, sc := range view.Scopes {
			tw.AppendRow(table.Row{sc.ID, sc.TaskID, sc.Description, display.Currency(sc.Cost), display.Date(strOr(sc.CompletedOn))})
		}
		tw.Render()
	}
	if len(view.Notes) > 0 {
		fmt.Println("Notes:")
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Kind", "Body", "Due", "Done"})
		for _, n := range view.Notes {
			tw.AppendRow(table.Row{n.Kind, n.Body, display.Date(strOr(n.DueOn)), n.Done})
		}
		tw.Render()
	}
	if len(view.Assignments) > 0 {
		fmt.Println("Assignments:")
		for _, a := range view.Assignments {
			fmt.Printf("  %s: %s\n", a.ActorID, a.Duty)
		}
	}
}

func outcomeCmd() *cobra.Command {
	out := &cobra.Command{
		Use:   "outcome",
		Short: "Manage outcome tracks",
		Long:  "Outcomes are the exit strategies being worked on an asset. Ensure is idempotent: the first call creates the track, repeats return the existing row.",
	}
	out.AddCommand(outcomeEnsureCmd())
	out.AddCommand(outcomeListCmd())
	out.AddCommand(outcomeSetStatusCmd())
	out.AddCommand(outcomeDeleteCmd())
	return out
}

func outcomeEnsureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure <track>",
		Short: "Ensure a track exists on the asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.EnsureOutcome(ctx, hub, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func outcomeListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outcome tracks on the asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOutcomes(ctx, repo.OutcomeFilters{HubID: hub, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Track", "Status", "Created"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, track.Label(o.Track), o.Status, display.Date(o.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, closed)")
	return cmd
}

func outcomeSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <track>",
		Short: "Close or reopen a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.SetOutcomeStatus(ctx, hub, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (active, closed)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func outcomeDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <track>",
		Short: "Delete a track and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteOutcome(ctx, hub, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage stage tasks",
		Long:  "Tasks are the stage checkpoints inside a track. Each track only accepts its own task types; 'al task create --track reo --type trashout' is valid, '--type referral' is not.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			opts.HubID = hub
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Track, "track", "", "outcome track")
	cmd.Flags().StringVar(&opts.TaskType, "type", "", "task type")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.ScheduledFor, "scheduled-for", "", "scheduled date (2006-01-02)")
	_ = cmd.MarkFlagRequired("track")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.HubID = hubFilter()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Assignee", "Scheduled"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, track.TaskBadge(t.TaskType).Label, t.Status, strOr(t.AssigneeID), display.Date(strOr(t.ScheduledFor))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.OutcomeID, "outcome-id", "", "outcome id filter")
	cmd.Flags().StringVar(&f.TaskType, "type", "", "task type filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (open, done)")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var taskType, status, assign, notes, scheduledFor string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("type") {
				opts.TaskType = &taskType
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("assign") {
				opts.AssigneeID = &assign
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			if cmd.Flags().Changed("scheduled-for") {
				opts.ScheduledFor = &scheduledFor
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&taskType, "type", "", "task type")
	cmd.Flags().StringVar(&status, "status", "", "new status (open, done)")
	cmd.Flags().StringVar(&assign, "assign", "", "set assignee id (empty clears)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&scheduledFor, "scheduled-for", "", "scheduled date (empty clears)")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			done := "done"
			opts := engine.TaskUpdateOptions{ID: args[0], Status: &done, ActorID: viper.GetString("actor-id")}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func offerCmd() *cobra.Command {
	offer := &cobra.Command{
		Use:   "offer",
		Short: "Manage offers",
		Long:  "Offers are bids on a sale channel (short_sale, reo, note_sale). At most one offer per asset and channel can be accepted; a second accept is a conflict.",
	}
	offer.AddCommand(offerCreateCmd())
	offer.AddCommand(offerListCmd())
	offer.AddCommand(offerUpdateCmd())
	offer.AddCommand(offerAcceptCmd())
	offer.AddCommand(offerDeleteCmd())
	return offer
}

func offerCreateCmd() *cobra.Command {
	var opts engine.OfferCreateOptions
	var price string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			opts.HubID = hub
			opts.ActorID = viper.GetString("actor-id")
			if opts.Price, err = decimal.NewFromString(strings.TrimSpace(price)); err != nil {
				return fmt.Errorf("invalid price %q", price)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOffer(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "sale channel (short_sale, reo, note_sale)")
	cmd.Flags().StringVar(&price, "price", "", "offer price")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (defaults to pending)")
	cmd.Flags().StringVar(&opts.BuyerName, "buyer", "", "buyer name")
	cmd.Flags().StringVar(&opts.BrokerID, "broker-id", "", "broker id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.ReceivedOn, "received-on", "", "received date (2006-01-02)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func offerListCmd() *cobra.Command {
	var f repo.OfferFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.HubID = hubFilter()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOffers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Hub", "Source", "Status", "Price", "Buyer", "Received"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.HubID, track.OfferSourceBadge(o.Source).Label, track.OfferStatusBadge(o.Status).Label, display.Currency(o.Price), o.BuyerName, display.Date(strOr(o.ReceivedOn))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Source, "source", "", "sale channel filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func offerUpdateCmd() *cobra.Command {
	var status, buyer, brokerID, notes, receivedOn, price string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.OfferUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("buyer") {
				opts.BuyerName = &buyer
			}
			if cmd.Flags().Changed("broker-id") {
				opts.BrokerID = &brokerID
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			if cmd.Flags().Changed("received-on") {
				opts.ReceivedOn = &receivedOn
			}
			if cmd.Flags().Changed("price") {
				d, err := decimal.NewFromString(strings.TrimSpace(price))
				if err != nil {
					return fmt.Errorf("invalid price %q", price)
				}
				opts.Price = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.UpdateOffer(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&price, "price", "", "new price")
	cmd.Flags().StringVar(&buyer, "buyer", "", "buyer name")
	cmd.Flags().StringVar(&brokerID, "broker-id", "", "broker id (empty clears)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&receivedOn, "received-on", "", "received date (empty clears)")
	return cmd
}

func offerAcceptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.AcceptOffer(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func offerDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteOffer(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func scopeCmd() *cobra.Command {
	scope := &cobra.Command{
		Use:   "scope",
		Short: "Manage REO work scopes",
		Long:  "Scopes are vendor work orders priced per job. They attach only to trashout and renovation tasks on the REO track.",
	}
	scope.AddCommand(scopeCreateCmd())
	scope.AddCommand(scopeListCmd())
	scope.AddCommand(scopeUpdateCmd())
	scope.AddCommand(scopeDeleteCmd())
	return scope
}

func scopeCreateCmd() *cobra.Command {
	var opts engine.ScopeCreateOptions
	var cost string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			var err error
			if opts.Cost, err = decimal.NewFromString(strings.TrimSpace(cost)); err != nil {
				return fmt.Errorf("invalid cost %q", cost)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.CreateScope(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.TaskID, "task-id", "", "trashout or renovation task id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "work description")
	cmd.Flags().StringVar(&cost, "cost", "", "cost")
	cmd.Flags().StringVar(&opts.VendorID, "vendor-id", "", "vendor id")
	cmd.Flags().StringVar(&opts.ScheduledFor, "scheduled-for", "", "scheduled date (2006-01-02)")
	_ = cmd.MarkFlagRequired("task-id")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("cost")
	return cmd
}

func scopeListCmd() *cobra.Command {
	var f repo.ScopeFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.HubID = hubFilter()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListScopes(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Description", "Cost", "Vendor", "Scheduled", "Completed"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.TaskID, s.Description, display.Currency(s.Cost), strOr(s.VendorID), display.Date(strOr(s.ScheduledFor)), display.Date(strOr(s.CompletedOn))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.TaskID, "task-id", "", "task id filter")
	return cmd
}

func scopeUpdateCmd() *cobra.Command {
	var description, vendorID, scheduledFor, completedOn, cost string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ScopeUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("description") {
				opts.Description = &description
			}
			if cmd.Flags().Changed("vendor-id") {
				opts.VendorID = &vendorID
			}
			if cmd.Flags().Changed("scheduled-for") {
				opts.ScheduledFor = &scheduledFor
			}
			if cmd.Flags().Changed("completed-on") {
				opts.CompletedOn = &completedOn
			}
			if cmd.Flags().Changed("cost") {
				d, err := decimal.NewFromString(strings.TrimSpace(cost))
				if err != nil {
					return fmt.Errorf("invalid cost %q", cost)
				}
				opts.Cost = &d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.UpdateScope(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "work description")
	cmd.Flags().StringVar(&cost, "cost", "", "cost")
	cmd.Flags().StringVar(&vendorID, "vendor-id", "", "vendor id (empty clears)")
	cmd.Flags().StringVar(&scheduledFor, "scheduled-for", "", "scheduled date (empty clears)")
	cmd.Flags().StringVar(&completedOn, "completed-on", "", "completed date (empty clears)")
	return cmd
}

func scopeDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteScope(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{
		Use:   "note",
		Short: "Notes and follow-ups",
		Long:  "Notes are the asset diary. A follow-up is a note with a due date and assignee that can be marked done; todos work the same way.",
	}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	note.AddCommand(noteUpdateCmd())
	note.AddCommand(noteDoneCmd())
	note.AddCommand(noteDeleteCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	var opts engine.CalendarCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a note or follow-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			opts.HubID = hub
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ce, err := e.CreateCalendarEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ce)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "note", "kind (note, follow_up, todo)")
	cmd.Flags().StringVar(&opts.Body, "body", "", "text")
	cmd.Flags().StringVar(&opts.OutcomeTrack, "track", "", "outcome track context")
	cmd.Flags().StringVar(&opts.TaskID, "task-id", "", "task context")
	cmd.Flags().StringVar(&opts.DueOn, "due-on", "", "due date (2006-01-02)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee id")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func noteListCmd() *cobra.Command {
	var f repo.CalendarFilters
	var done, pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes and follow-ups",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.HubID = hubFilter()
			if done {
				v := true
				f.Done = &v
			} else if pending {
				v := false
				f.Done = &v
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCalendarEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Body", "Due", "Assignee", "Done"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Kind, n.Body, display.Date(strOr(n.DueOn)), strOr(n.AssigneeID), n.Done})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&f.DueBefore, "due-before", "", "due on or before (2006-01-02)")
	cmd.Flags().BoolVar(&done, "done", false, "only completed")
	cmd.Flags().BoolVar(&pending, "pending", false, "only pending")
	return cmd
}

func noteUpdateCmd() *cobra.Command {
	var body, dueOn, assigneeID string
	var done, reopen bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.CalendarUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("body") {
				opts.Body = &body
			}
			if cmd.Flags().Changed("due-on") {
				opts.DueOn = &dueOn
			}
			if cmd.Flags().Changed("assignee-id") {
				opts.AssigneeID = &assigneeID
			}
			if done {
				v := true
				opts.Done = &v
			} else if reopen {
				v := false
				opts.Done = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ce, err := e.UpdateCalendarEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ce)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "text")
	cmd.Flags().StringVar(&dueOn, "due-on", "", "due date (empty clears)")
	cmd.Flags().StringVar(&assigneeID, "assignee-id", "", "assignee id (empty clears)")
	cmd.Flags().BoolVar(&done, "done", false, "mark done")
	cmd.Flags().BoolVar(&reopen, "reopen", false, "mark pending again")
	return cmd
}

func noteDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a follow-up done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := true
			opts := engine.CalendarUpdateOptions{ID: args[0], Done: &v, ActorID: viper.GetString("actor-id")}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ce, err := e.UpdateCalendarEvent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ce)
			})
		},
	}
	return cmd
}

func noteDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteCalendarEvent(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func brokerCmd() *cobra.Command {
	broker := &cobra.Command{
		Use:   "broker",
		Short: "Broker and vendor directory",
	}
	broker.AddCommand(brokerCreateCmd())
	broker.AddCommand(brokerListCmd())
	broker.AddCommand(brokerShowCmd())
	broker.AddCommand(brokerUpdateCmd())
	broker.AddCommand(brokerDeleteCmd())
	return broker
}

func brokerCreateCmd() *cobra.Command {
	var opts engine.BrokerCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a broker, vendor, or trading partner",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBroker(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "contact name")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind (broker, vendor, trading_partner; defaults to broker)")
	cmd.Flags().StringVar(&opts.Firm, "firm", "", "firm")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Market, "market", "", "market")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func brokerListCmd() *cobra.Command {
	var f repo.BrokerFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directory contacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBrokers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Firm", "Market", "Email"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.Kind, b.Name, b.Firm, b.Market, b.Email})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&f.Market, "market", "", "market filter")
	return cmd
}

func brokerShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				b, err := r.GetBroker(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func brokerUpdateCmd() *cobra.Command {
	var name, firm, email, phone, market string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.BrokerUpdateOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("firm") {
				opts.Firm = &firm
			}
			if cmd.Flags().Changed("email") {
				opts.Email = &email
			}
			if cmd.Flags().Changed("phone") {
				opts.Phone = &phone
			}
			if cmd.Flags().Changed("market") {
				opts.Market = &market
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.UpdateBroker(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "contact name")
	cmd.Flags().StringVar(&firm, "firm", "", "firm")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	cmd.Flags().StringVar(&market, "market", "", "market")
	return cmd
}

func brokerDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteBroker(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func valuationCmd() *cobra.Command {
	val := &cobra.Command{
		Use:   "valuation",
		Short: "Record and list valuations",
	}
	val.AddCommand(valuationRecordCmd())
	val.AddCommand(valuationListCmd())
	return val
}

func valuationRecordCmd() *cobra.Command {
	var opts engine.ValuationCreateOptions
	var value string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a valuation",
		Long:  "BPO valuations refresh the asset's as-is or ARV column when at least as recent as the prior latest of that kind. Appraisals never touch the asset row.",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			opts.HubID = hub
			opts.ActorID = viper.GetString("actor-id")
			if opts.Value, err = decimal.NewFromString(strings.TrimSpace(value)); err != nil {
				return fmt.Errorf("invalid value %q", value)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.RecordValuation(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "kind (bpo_asis, bpo_arv, appraisal)")
	cmd.Flags().StringVar(&value, "value", "", "value")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "valuation date (2006-01-02)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "source")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("as-of")
	return cmd
}

func valuationListCmd() *cobra.Command {
	var f repo.ValuationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List valuations",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.HubID = hubFilter()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListValuations(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Hub", "Kind", "Value", "As Of", "Source"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.HubID, v.Kind, display.Currency(v.Value), display.Date(v.AsOf), v.Source})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter")
	return cmd
}

func assignCmd() *cobra.Command {
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Manage asset assignments",
	}
	assign.AddCommand(assignSetCmd())
	assign.AddCommand(assignListCmd())
	assign.AddCommand(assignClearCmd())
	return assign
}

func assignSetCmd() *cobra.Command {
	var duty string
	cmd := &cobra.Command{
		Use:   "set <actor-id>",
		Short: "Assign an actor to the asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.SetAssignment(ctx, hub, args[0], duty, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&duty, "duty", "", "duty (asset_manager, analyst, broker_contact)")
	_ = cmd.MarkFlagRequired("duty")
	return cmd
}

func assignListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments on the asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAssignments(ctx, hub, "")
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func assignClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <actor-id>",
		Short: "Remove an actor's assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ClearAssignment(ctx, hub, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Per-track task metrics for an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := requireHub()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.TrackMetricsForHub(ctx, hub)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Track", "Total", "Open", "Done", "Latest", "When"})
				for _, m := range items {
					tw.AppendRow(table.Row{track.Label(m.Track), m.TotalTasks, m.OpenTasks, m.DoneTasks, track.TaskBadge(m.LatestTaskType).Label, display.Date(strOr(m.LatestTaskAt))})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: asset edits, track changes, offers, scopes, and more.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, hubFilter(), evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := app.ResolveConfig(workspace, "")
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			authCfg := server.AuthConfig{
				Enabled:                cfg.Auth.Enabled,
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				Logger:                 logger,
			}
			if secret := os.Getenv("ASSETLINE_JWT_SECRET"); secret != "" {
				authCfg.Enabled = true
				authCfg.JWTSecret = secret
			}
			if authCfg.Enabled && authCfg.JWTSecret == "" {
				return fmt.Errorf("auth is enabled but no JWT secret is set; set auth.jwt_secret or ASSETLINE_JWT_SECRET")
			}
			if !cmd.Flags().Changed("addr") && cfg.Server.Listen != "" {
				addr = cfg.Server.Listen
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = cfg.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, logger)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Assetline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "RBAC management",
	}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	cmd.AddCommand(rbacBootstrapCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				who, err := e.WhoAmI(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
	return cmd
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.GrantRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeRole(ctx, target, role, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacBootstrapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed roles, permissions, and team grants from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.BootstrapRBAC(ctx, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("rbac bootstrapped")
				return nil
			})
		},
	}
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "API key management",
	}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyListCmd())
	key.AddCommand(keyRevokeCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (the secret is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret, k, err := e.CreateAPIKey(ctx, actor, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"secret": secret, "api_key": k})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	return cmd
}

func keyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := app.ResolveConfig(workspace, "")
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func requireHub() (int64, error) {
	return app.ResolveHub(viper.GetInt64("hub"), viper.GetString("default-hub"))
}

// hubFilter resolves the hub leniently for list commands: no hub means list
// across all assets.
func hubFilter() int64 {
	hub, err := app.ResolveHub(viper.GetInt64("hub"), viper.GetString("default-hub"))
	if err != nil {
		return 0
	}
	return hub
}

func parseHubArg(s string) (int64, error) {
	hub, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || hub <= 0 {
		return 0, fmt.Errorf("invalid asset hub id %q", s)
	}
	return hub, nil
}

func parseMoney(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// moneyPtr reads a money flag for updates: unset means no change, an empty
// value clears the column.
func moneyPtr(cmd *cobra.Command, name, value string) (*decimal.NullDecimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	nd, err := parseMoney(value)
	if err != nil {
		return nil, err
	}
	return &nd, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func strOr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
