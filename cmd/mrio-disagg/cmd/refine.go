package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pik-piam/mrio-disagg/internal/engine"
	"github.com/pik-piam/mrio-disagg/internal/ioformat"
	"github.com/pik-piam/mrio-disagg/internal/repository"
	"github.com/pik-piam/mrio-disagg/internal/storage"
	"github.com/pik-piam/mrio-disagg/internal/table"
	"github.com/pik-piam/mrio-disagg/pkg/config"
	"github.com/pik-piam/mrio-disagg/pkg/utils"
	"github.com/pik-piam/mrio-disagg/pkg/writer"
)

var (
	refineSplitConfig string
	refineBase        string
	refineOut         string
	refineYear        int
	refineGzip        bool
	refineWorkers     int
	refineThreshold   float64
	refineUpload      string
)

// refineCmd runs the full load -> split -> proxy -> refine -> write pipeline.
var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Disaggregate a base table using a split configuration",
	Long: `refine loads a base MRIO table, applies the declared sector/region
splits, loads every referenced proxy file, runs the eighteen-level
refinement algorithm, and writes the resulting table to --out.`,
	RunE: runRefine,
}

func init() {
	refineCmd.Flags().StringVar(&refineSplitConfig, "config", "", "Split configuration YAML (required)")
	refineCmd.Flags().StringVar(&refineBase, "base", "", "Base table path prefix (required)")
	refineCmd.Flags().StringVar(&refineOut, "out", "", "Output directory (required)")
	refineCmd.Flags().IntVar(&refineYear, "year", 0, "Override every proxy file's year filter")
	refineCmd.Flags().BoolVar(&refineGzip, "gzip", false, "Read/write the matrix file gzip-compressed")
	refineCmd.Flags().IntVar(&refineWorkers, "workers", 0, "Concurrent proxy-file fetchers (0 = config/default)")
	refineCmd.Flags().Float64Var(&refineThreshold, "threshold", 0, "Cell-zeroing threshold applied while loading the matrix")
	refineCmd.Flags().StringVar(&refineUpload, "upload-key", "", "Object storage key to upload the output matrix to, if --app-config configures storage")
	rootCmd.AddCommand(refineCmd)
}

func runRefine(cmd *cobra.Command, args []string) error {
	if refineSplitConfig == "" || refineBase == "" || refineOut == "" {
		return fmt.Errorf("--config, --base and --out are all required")
	}

	log := GetLogger()
	ctx := context.Background()

	appCfg, err := config.Load(AppConfigPath())
	if err != nil {
		return fmt.Errorf("loading app config: %w", err)
	}

	workers := refineWorkers
	if workers <= 0 {
		workers = appCfg.Run.Workers
	}
	threshold := refineThreshold
	if threshold == 0 {
		threshold = appCfg.Run.Threshold
	}

	var repos *repository.Repositories
	if appCfg.Database.Type != "" {
		gormDB, err := repository.NewGormDB((*repository.DBConfig)(&appCfg.Database))
		if err != nil {
			log.Warn("run-history database unavailable, continuing without audit logging: %v", err)
		} else {
			repos = repository.NewRepositories(gormDB, appCfg.Database.Type)
			defer repos.Close()
		}
	}

	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	if repos != nil {
		run := &repository.Run{
			RunID:           runID,
			SplitConfigPath: refineSplitConfig,
			BaseTablePath:   refineBase,
			Year:            refineYear,
			Status:          repository.RunStatusRunning,
		}
		if err := repos.Run.CreateRun(ctx, run); err != nil {
			log.Warn("failed to record run start: %v", err)
		}
	}

	result, runErr := doRefine(log, workers, threshold)
	if runErr != nil {
		if repos != nil {
			if err := repos.Run.FailRun(ctx, runID, runErr.Error()); err != nil {
				log.Warn("failed to record run failure: %v", err)
			}
		}
		return runErr
	}

	if repos != nil {
		if err := repos.Run.CompleteRun(ctx, runID, result.levelTimingMS, result.conservationSummary); err != nil {
			log.Warn("failed to record run completion: %v", err)
		}
	}

	if refineUpload != "" {
		st, err := storage.NewStorage(&appCfg.Storage)
		if err != nil {
			log.Warn("storage unavailable, skipping upload: %v", err)
		} else if err := st.UploadFile(ctx, refineUpload, result.matrixFile); err != nil {
			log.Warn("failed to upload output matrix: %v", err)
		} else {
			log.Info("uploaded output matrix to %s", st.GetURL(refineUpload))
		}
	}

	log.Info("refine complete: %d levels applied, grand-total diff %.3e", len(result.levelTimingMS), result.conservationSummary["grand_total_diff"])
	return nil
}

type refineResult struct {
	matrixFile          string
	levelTimingMS       map[string]int64
	conservationSummary map[string]interface{}
}

func doRefine(log utils.Logger, workers int, threshold float64) (*refineResult, error) {
	indexFile := refineBase + ".index.csv"
	matrixFile := refineBase + ".matrix.csv"
	if refineGzip {
		matrixFile += ".gz"
	}

	log.Info("loading base table from %s", refineBase)

	var (
		baseTable *table.Table
		err       error
	)
	if refineGzip {
		_, baseTable, err = ioformat.ReadBaseTableGzip(indexFile, matrixFile, threshold)
	} else {
		_, baseTable, err = ioformat.ReadBaseTable(indexFile, matrixFile, threshold)
	}
	if err != nil {
		return nil, err
	}

	eng := engine.New(baseTable)
	eng.SetWorkers(workers)

	specs, err := ioformat.LoadSplitConfig(refineSplitConfig)
	if err != nil {
		return nil, err
	}
	if refineYear != 0 {
		for i := range specs {
			for j := range specs[i].Proxies {
				specs[i].Proxies[j].Year = refineYear
			}
		}
	}

	log.Info("applying %d splits and loading proxy files", len(specs))
	if err := eng.Initialize(specs); err != nil {
		return nil, err
	}

	log.Info("running refinement")
	eng.Refine()

	if err := os.MkdirAll(refineOut, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	outIndexFile := filepath.Join(refineOut, "refined.index.csv")
	outMatrixFile := filepath.Join(refineOut, "refined.matrix.csv")
	refinedIdx := eng.Table().IndexSet()
	if refineGzip {
		outMatrixFile += ".gz"
		if err := ioformat.WriteBaseTableGzip(refinedIdx, eng.Table(), outIndexFile, outMatrixFile); err != nil {
			return nil, err
		}
	} else {
		if err := ioformat.WriteBaseTable(refinedIdx, eng.Table(), outIndexFile, outMatrixFile); err != nil {
			return nil, err
		}
	}

	levelTiming := map[string]int64{}
	for _, phase := range eng.Timer().GetPhases() {
		if phase.Parent == "refine" {
			levelTiming[phase.Name] = phase.Duration.Milliseconds()
		}
	}

	baseGrandTotal := eng.Base().Sum(nil, nil, nil, nil)
	refinedGrandTotal := eng.Table().Sum(nil, nil, nil, nil)
	summary := map[string]interface{}{
		"base_grand_total":    baseGrandTotal,
		"refined_grand_total": refinedGrandTotal,
		"grand_total_diff":    refinedGrandTotal - baseGrandTotal,
		"levels_applied":      len(levelTiming),
	}

	summaryWriter := writer.NewPrettyJSONWriter[map[string]interface{}]()
	if err := summaryWriter.WriteToFile(summary, filepath.Join(refineOut, "conservation_summary.json")); err != nil {
		log.Warn("failed to write conservation summary: %v", err)
	}

	return &refineResult{
		matrixFile:          outMatrixFile,
		levelTimingMS:       levelTiming,
		conservationSummary: summary,
	}, nil
}
