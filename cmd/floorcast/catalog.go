package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/kiranshivaraju/floorcast/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List floors and sample rooms in a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FLOOR\tNAME\tCOLLECTION\tREFS\tMASK")
			for _, p := range cat.ListProducts() {
				mask := "no"
				if p.MaskImage != "" {
					mask = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Name, p.Collection, len(p.ReferenceImages), mask)
			}
			fmt.Fprintln(tw, "\t\t\t\t")
			fmt.Fprintln(tw, "SAMPLE\tNAME\t\t\t")
			for _, s := range cat.ListSamples() {
				fmt.Fprintf(tw, "%s\t%s\t\t\t\n", s.ID, strings.TrimSpace(s.Name))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "catalog", envOr("CATALOG_PATH", "catalog/catalog.yaml"), "catalog file")
	return cmd
}
