// Package cmd - query command
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rxcost/core/aggregate"
	"rxcost/internal/app"
	"rxcost/internal/config"
)

var (
	queryZIP      string
	queryQty      int
	queryLimit    int
	queryCounty   string
	queryChains   []string
	queryForm     string
	queryStrength string
	queryDedupe   string
	queryFormat   string
	queryTimeout  time.Duration
	queryResolve  bool
	queryMock     bool
	queryNadac    bool
	queryGoodRx   bool
	queryFlorida  bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query [drug]",
	Short: "Look up prices for a drug",
	Long: `Query the enabled price providers once and print the merged,
ranked result table.

Examples:
  rxcost query metformin
  rxcost query metformin --qty 90 --zip 33101
  rxcost query atorvastatin --dedupe chain --format json
  rxcost query lisinopril --florida --county DADE`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryZIP, "zip", "", "five digit ZIP code hint")
	queryCmd.Flags().IntVar(&queryQty, "qty", 30, "quantity to price")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 25, "maximum rows to return")
	queryCmd.Flags().StringVar(&queryCounty, "county", "", "county hint for the regional export")
	queryCmd.Flags().StringSliceVar(&queryChains, "chains", nil, "restrict results to these chains")
	queryCmd.Flags().StringVar(&queryForm, "form", "", "keep rows whose dosage form contains this text")
	queryCmd.Flags().StringVar(&queryStrength, "strength", "", "keep rows whose strength contains this text")
	queryCmd.Flags().StringVar(&queryDedupe, "dedupe", "none", "collapse duplicates (none, chain, pharmacy)")
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "table", "output format (table, json)")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 30*time.Second, "overall lookup timeout")
	queryCmd.Flags().BoolVar(&queryResolve, "resolve", true, "resolve the drug name before searching")
	queryCmd.Flags().BoolVar(&queryMock, "mock", true, "include the built-in demo dataset")
	queryCmd.Flags().BoolVar(&queryNadac, "nadac", true, "include the acquisition cost benchmark")
	queryCmd.Flags().BoolVar(&queryGoodRx, "goodrx", false, "include discount prices (defaults on when a key is configured)")
	queryCmd.Flags().BoolVar(&queryFlorida, "florida", false, "include the Florida retail export")
}

func runQuery(cmd *cobra.Command, args []string) error {
	drug := strings.TrimSpace(args[0])
	if drug == "" {
		return fmt.Errorf("drug name is required")
	}
	if queryZIP != "" && !fiveDigits(queryZIP) {
		return fmt.Errorf("zip must be exactly five digits")
	}
	dedupe, ok := aggregate.ParseDedupeMode(queryDedupe)
	if !ok {
		return fmt.Errorf("dedupe must be one of none, chain or pharmacy")
	}

	cfg := config.Get()
	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble the service: %w", err)
	}

	includeGoodRx := queryGoodRx
	if !cmd.Flags().Changed("goodrx") {
		includeGoodRx = cfg.Providers.GoodRx.Configured()
	}

	query := aggregate.Query{
		Drug:           drug,
		ZIP:            queryZIP,
		Qty:            clamp(queryQty, 1, 5000),
		Limit:          clamp(queryLimit, 1, 50),
		County:         strings.TrimSpace(queryCounty),
		Resolve:        queryResolve,
		IncludeMock:    queryMock,
		IncludeNADAC:   queryNadac,
		IncludeGoodRx:  includeGoodRx,
		IncludeFlorida: queryFlorida,
		Chains:         queryChains,
		Form:           queryForm,
		Strength:       queryStrength,
		Dedupe:         dedupe,
		ClientKey:      "cli",
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result := application.Aggregator.Run(ctx, query)

	if queryFormat == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	printResults(drug, query.Qty, result)
	return nil
}

func printResults(drug string, qty int, result aggregate.Result) {
	hr := strings.Repeat("─", 73)
	line := func(content string) { fmt.Printf("│ %-71s │\n", content) }

	fmt.Println("┌" + hr + "┐")
	line(fmt.Sprintf("%-52s %18s", strings.ToUpper(drug), fmt.Sprintf("qty %d", qty)))
	fmt.Println("├" + hr + "┤")

	if len(result.Rows) == 0 {
		line("No prices found.")
	} else {
		line(fmt.Sprintf("%-28s %-10s %9s %8s %-12s", "PHARMACY", "CHAIN", "TOTAL", "UNIT", "DATASET"))
		for _, row := range result.Rows {
			name := row.PharmacyName()
			if name == "" {
				name = row.DrugName
			}
			line(fmt.Sprintf("%-28s %-10s %9s %8s %-12s",
				truncate(name, 28),
				truncate(row.Chain(), 10),
				fmt.Sprintf("$%.2f", row.TotalPrice),
				fmt.Sprintf("$%.4f", row.UnitPrice),
				truncate(row.Dataset, 12)))
		}
	}

	if len(result.ChainSummary) > 0 {
		fmt.Println("├" + hr + "┤")
		for _, stat := range result.ChainSummary {
			line(fmt.Sprintf("%-28s %d rows from $%.2f", truncate(stat.Chain, 28), stat.Count, stat.MinTotalPrice))
		}
	}
	fmt.Println("└" + hr + "┘")

	if r := result.Transparency.Resolution; r != nil {
		fmt.Printf("\nResolved to %q (rxcui %s)\n", r.Name, r.RxCUI)
	}
	if b := result.Transparency.NADACMinUnitPrice; b != nil {
		fmt.Printf("Pharmacy acquisition benchmark: $%.4f per unit\n", *b)
	}
	if len(result.Transparency.Caveats) > 0 {
		fmt.Println()
		for _, c := range result.Transparency.Caveats {
			fmt.Printf("! %s\n", c)
		}
	}
	fmt.Printf("\nSources: %s\n", strings.Join(result.Transparency.Attempted, ", "))
}

func fiveDigits(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
