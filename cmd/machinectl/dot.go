package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comalice/machinestore/internal/production"
)

func dotCmd(a *app) *cobra.Command {
	var (
		resume bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "dot <definition.yaml>",
		Short: "Print a Graphviz graph of a machine with its active states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadMachine(args[0])
			if err != nil {
				return err
			}
			viz := &production.DefaultVisualizer{}
			out := cmd.OutOrStdout()

			if asJSON {
				data, err := viz.ExportJSON(m.Config())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			value := m.InitialValue()
			if resume {
				saved, err := a.savedState(cmd.Context(), m)
				if err != nil {
					return err
				}
				if saved != nil {
					s, err := m.CreateState(*saved)
					if err != nil {
						return err
					}
					value = s.Value
				}
			}
			_, err = fmt.Fprint(out, viz.ExportDOT(m.Config(), value))
			return err
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "Highlight the saved snapshot instead of the initial state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the definition as JSON instead")
	return cmd
}
