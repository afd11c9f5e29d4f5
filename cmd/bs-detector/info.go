package main

import (
	"fmt"
	"strings"

	"BotnetSpectra/internal/capture/live"
	"BotnetSpectra/internal/classify"

	"github.com/spf13/cobra"
)

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the network interfaces available for live capture.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := live.ListDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found.")
				return nil
			}
			for i, d := range devices {
				fmt.Fprintf(out, "%d. %s", i+1, d.Name)
				if d.Description != "" {
					fmt.Fprintf(out, " (%s)", d.Description)
				}
				if len(d.Addresses) > 0 {
					fmt.Fprintf(out, " [%s]", strings.Join(d.Addresses, ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newClassifiersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classifiers",
		Short: "List the registered classifiers and their classes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range classify.Names() {
				c, err := classify.New(name)
				if err != nil {
					return err
				}
				marker := " "
				if name == opts.cfg.Classifier.Name {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s: %s\n", marker, name, strings.Join(c.Classes().Names(), ", "))
			}
			return nil
		},
	}
}
