package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"optiondesk/internal/catalog"
	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

func newInstrumentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instruments",
		Aliases: []string{"inst"},
		Short:   "Search and manage the option catalog",
	}

	cmd.AddCommand(newInstrumentsSearchCmd(app))
	cmd.AddCommand(newInstrumentsRefreshCmd(app))
	cmd.AddCommand(newInstrumentsClearCmd(app))
	cmd.AddCommand(newInstrumentsInfoCmd(app))

	return cmd
}

func newInstrumentsSearchCmd(app *App) *cobra.Command {
	var underlyingFlag string
	var all bool

	cmd := &cobra.Command{
		Use:   "search <strike|symbol>",
		Short: "Find option contracts by strike or symbol",
		Long: `Find NIFTY or SENSEX options whose strike or trading symbol contains the
keyword. Without --underlying, strikes of 50000 and above search SENSEX.`,
		Example: `  optiondesk instruments search 24000
  optiondesk instruments search 81500 --all
  optiondesk instruments search banknifty --underlying NIFTY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			keyword := args[0]

			underlying, err := resolveUnderlying(app, underlyingFlag, keyword)
			if err != nil {
				return err
			}

			cat, closeFn, err := app.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res := cat.Search(underlying, keyword, time.Now())
			if !all && len(res.Expiries) > 1 {
				res.Expiries = res.Expiries[:1]
			}

			if output.IsJSON() {
				return output.JSON(searchJSON(res))
			}
			renderSearch(output, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&underlyingFlag, "underlying", "u", "", "NIFTY or SENSEX")
	cmd.Flags().BoolVar(&all, "all", false, "show every upcoming expiry, not just the nearest")

	return cmd
}

// resolveUnderlying prefers the flag, then the keyword's strike, then the
// configured default.
func resolveUnderlying(app *App, flag, keyword string) (models.Underlying, error) {
	if flag != "" {
		return models.ParseUnderlying(flag)
	}
	if u, ok := catalog.InferUnderlying(keyword); ok {
		return u, nil
	}
	return models.ParseUnderlying(app.Config.Trading.DefaultUnderlying)
}

type expiryJSON struct {
	Expiry string              `json:"expiry"`
	Calls  []models.Instrument `json:"calls"`
	Puts   []models.Instrument `json:"puts"`
}

func searchJSON(res catalog.SearchResult) map[string]interface{} {
	groups := make([]expiryJSON, 0, len(res.Expiries))
	for _, label := range res.Expiries {
		groups = append(groups, expiryJSON{
			Expiry: label,
			Calls:  byStrike(res.Calls[label]),
			Puts:   byStrike(res.Puts[label]),
		})
	}
	return map[string]interface{}{
		"underlying": res.Underlying,
		"keyword":    res.Keyword,
		"expiries":   groups,
	}
}

func renderSearch(output *Output, res catalog.SearchResult) {
	if res.Empty() {
		output.Warning("No upcoming %s options match %q", res.Underlying, res.Keyword)
		return
	}

	for i, label := range res.Expiries {
		if i > 0 {
			output.Println()
		}
		output.Bold("%s  %s", res.Underlying, label)

		table := NewTable(output, "TYPE", "STRIKE", "SYMBOL", "KEY", "LOT")
		for _, group := range [][]models.Instrument{res.Calls[label], res.Puts[label]} {
			for _, inst := range byStrike(group) {
				typ := output.Green(string(inst.OptionType))
				if inst.OptionType == models.PE {
					typ = output.Red(string(inst.OptionType))
				}
				table.AddRow(
					typ,
					inst.StrikePrice.String(),
					inst.TradingSymbol,
					inst.Key,
					fmt.Sprintf("%d", inst.LotSize),
				)
			}
		}
		table.Render()
	}
}

func byStrike(in []models.Instrument) []models.Instrument {
	out := make([]models.Instrument, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StrikePrice.LessThan(out[j].StrikePrice)
	})
	return out
}

func newInstrumentsRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download today's catalog, ignoring the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			cat, closeFn, err := app.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			cache, err := cat.Refresh(cmd.Context(), time.Now())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"date":        cache.AsOf,
					"version":     cache.Version,
					"instruments": len(cache.Instruments),
				})
			}
			output.Success("✓ Catalog refreshed: %s instruments for %s",
				utils.FormatQuantity(int64(len(cache.Instruments))), cache.AsOf)
			return nil
		},
	}
}

func newInstrumentsClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			cat, closeFn, err := app.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := cat.Clear(cmd.Context()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"cleared": true})
			}
			output.Success("✓ Catalog cache cleared")
			return nil
		},
	}
}

func newInstrumentsInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where today's catalog comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			cat, closeFn, err := app.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			asOf, source, count := cat.Info()
			lastSync := cat.LastSync()

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"date":        asOf,
					"source":      source,
					"instruments": count,
					"last_sync":   lastSync,
				})
			}

			output.Printf("Date:        %s\n", asOf)
			output.Printf("Source:      %s\n", source)
			output.Printf("Instruments: %s\n", utils.FormatQuantity(int64(count)))
			if !lastSync.IsZero() {
				output.Printf("Last sync:   %s\n", lastSync.In(utils.IndiaLocation).Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
