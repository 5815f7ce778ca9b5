package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/ardnew/softhid/host/hal"
)

// renderVariants formats variants as a table in open order.
func renderVariants(variants []hal.Variant) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{
		"#",
		"Name",
		"Device node",
		"Vendor",
		"Product",
	})
	for i, v := range variants {
		node := v.DevName
		if node == "" {
			node = "-"
		}
		t.AppendRow(table.Row{
			i + 1,
			v.Name,
			node,
			fmt.Sprintf("0x%04x", v.VendorID),
			fmt.Sprintf("0x%04x", v.ProductID),
		})
	}
	return t.Render()
}

func newVariantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List configured device variants in open order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderVariants(a.cfg.Variants()))
			return nil
		},
	}
}
