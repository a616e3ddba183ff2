// Package cmd - providers command
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"rxcost/core/provider"
	"rxcost/internal/config"
)

// providersCmd lists the configured price providers
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured price providers",
	Run: func(cmd *cobra.Command, args []string) {
		p := config.Get().Providers

		fmt.Printf("%-10s %-28s %-8s %-11s %s\n", "ID", "LABEL", "ENABLED", "CONFIGURED", "HOMEPAGE")

		printProvider(provider.RxNorm, p.RxNorm.Enabled, p.RxNorm.Enabled)
		for _, id := range provider.MergeOrder {
			switch id {
			case provider.GoodRx:
				printProvider(id, p.GoodRx.IsEnabled(), p.GoodRx.IsEnabled() && p.GoodRx.Configured())
			case provider.NADAC:
				printProvider(id, p.NADAC.Enabled, p.NADAC.Enabled)
			case provider.Florida:
				printProvider(id, p.Florida.Enabled, p.Florida.Enabled)
			case provider.MockRx:
				printProvider(id, p.MockRx.Enabled, p.MockRx.Enabled)
			}
		}
	},
}

func printProvider(id provider.ID, enabled, configured bool) {
	d := provider.Describe(id)
	fmt.Printf("%-10s %-28s %-8s %-11s %s\n",
		d.ID, truncate(d.Label, 28), onOff(enabled), onOff(configured), d.Homepage)
}

func onOff(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
