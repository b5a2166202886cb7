package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pik-piam/mrio-disagg/internal/ioformat"
)

var (
	inspectBase      string
	inspectThreshold float64
	inspectGzip      bool
	inspectSplits    string
)

// inspectCmd loads only the base table/IndexSet and prints its dimensions
// and declared splits, without running any refinement. It is the read-only
// counterpart to refineCmd, useful for sanity-checking inputs beforehand.
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print dimensions and declared splits for a base table",
	Long: `inspect loads a base table's index and matrix files and reports its
sector/region counts and (if --config is given) the declared split
configuration, without disaggregating anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectBase == "" {
			return fmt.Errorf("--base is required")
		}

		indexFile := inspectBase + ".index.csv"
		matrixFile := inspectBase + ".matrix.csv"

		var idx interface {
			Size() int
			TotalSectorsCount() int
			TotalRegionsCount() int
		}

		if inspectGzip {
			is, t, err := ioformat.ReadBaseTableGzip(indexFile, matrixFile+".gz", inspectThreshold)
			if err != nil {
				return err
			}
			idx = is
			fmt.Printf("Dimension: %d x %d\n", t.Dimension(), t.Dimension())
		} else {
			is, t, err := ioformat.ReadBaseTable(indexFile, matrixFile, inspectThreshold)
			if err != nil {
				return err
			}
			idx = is
			fmt.Printf("Dimension: %d x %d\n", t.Dimension(), t.Dimension())
		}

		fmt.Printf("Leaf pairs:       %d\n", idx.Size())
		fmt.Printf("Sector axis size: %d\n", idx.TotalSectorsCount())
		fmt.Printf("Region axis size: %d\n", idx.TotalRegionsCount())

		if inspectSplits != "" {
			specs, err := ioformat.LoadSplitConfig(inspectSplits)
			if err != nil {
				return err
			}
			fmt.Printf("\nDeclared splits (%d):\n", len(specs))
			for _, s := range specs {
				fmt.Printf("  %s %q -> %v (%d proxy files)\n", s.Kind, s.ID, s.Into, len(s.Proxies))
			}
		}

		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectBase, "base", "", "Base table path prefix (expects <prefix>.index.csv and <prefix>.matrix.csv)")
	inspectCmd.Flags().Float64Var(&inspectThreshold, "threshold", 0, "Cell-zeroing threshold applied while loading the matrix")
	inspectCmd.Flags().BoolVar(&inspectGzip, "gzip", false, "Read a gzip-compressed matrix file (<prefix>.matrix.csv.gz)")
	inspectCmd.Flags().StringVar(&inspectSplits, "config", "", "Optional split config YAML to report alongside the base table")
	rootCmd.AddCommand(inspectCmd)
}
