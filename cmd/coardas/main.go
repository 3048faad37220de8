package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
)

func printBanner() {
	banner := figure.NewFigure("coardas", "isometric1", true)
	bannercolor.Cyan(banner.String())
	fmt.Println()
}

func main() {
	printBanner()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
