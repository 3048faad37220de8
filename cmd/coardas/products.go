package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/interob/coardas/internal/cgls"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List the products in the catalog",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range cgls.Catalog {
			color.Cyan(p.Name)
			fmt.Printf("  variable:   %s\n", p.Variable)
			fmt.Printf("  resolution: %s\n", p.Resolution)
			fmt.Printf("  manifest:   %s\n", p.ManifestURL)
			fmt.Println()
		}
	},
}
