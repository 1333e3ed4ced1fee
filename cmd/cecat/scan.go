package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/errors"
	"github.com/vkaloerov/cecat/internal/report"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the bus and list all slaves",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sc.close()

			slaves, err := sc.session.Scan()
			if err != nil {
				if stderrors.Is(err, ecat.ErrNoSlavesFound) {
					fmt.Fprintln(os.Stdout, "No slaves found on the bus")
					return nil
				}
				return errors.WrapBusError(err, "scan")
			}

			fmt.Fprint(os.Stdout, report.ScanTable(slaves))
			return nil
		},
	}
}
