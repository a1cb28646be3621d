package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Apollack123/charge-audit-bot2/internal/config"
	"github.com/Apollack123/charge-audit-bot2/internal/exporter"
	"github.com/Apollack123/charge-audit-bot2/internal/importer"
	"github.com/Apollack123/charge-audit-bot2/internal/model"
)

type auditOptions struct {
	moves         string
	outDir        string
	mode          string
	depositPolicy string
	billingMonth  string
	baseRent      float64
	workers       int
	xlsx          bool
	jsonOutput    bool
}

func newAuditCmd(root *rootOptions) *cobra.Command {
	opts := &auditOptions{}
	cmd := &cobra.Command{
		Use:   "audit FILE...",
		Short: "Audit one or more charge breakdown files",
		Long:  `The audit command normalizes each charge breakdown file (.xlsx, .xlsm or .csv), applies the audit rules and writes one <file>_audit.csv per audited file. A corrupt file is reported and skipped; the remaining files are still audited.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)

			a, err := buildApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAudit(ctx, a, opts, args, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.moves, "moves", "", "move-in/move-out file joined on unit")
	f.StringVarP(&opts.outDir, "out", "o", "", "output directory (default: data.output_dir)")
	f.StringVar(&opts.mode, "mode", "", "report mode: structured or passthrough")
	f.StringVar(&opts.depositPolicy, "deposit-policy", "", "missing deposit policy: empty or non_positive")
	f.StringVar(&opts.billingMonth, "billing-month", "", "only prorate move-ins in this month (YYYY-MM)")
	f.Float64Var(&opts.baseRent, "base-rent", 0, "monthly base lot rent used for proration")
	f.IntVar(&opts.workers, "workers", 0, "files audited in parallel")
	f.BoolVar(&opts.xlsx, "xlsx", false, "also write a combined workbook with a summary sheet")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the batch summary as JSON")
	return cmd
}

// apply 命令行参数覆盖配置
func (o *auditOptions) apply(cmd *cobra.Command, cfg *config.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Data.OutputDir = o.outDir
	}
	if flags.Changed("mode") {
		cfg.Audit.ReportMode = o.mode
	}
	if flags.Changed("deposit-policy") {
		cfg.Audit.DepositPolicy = o.depositPolicy
	}
	if flags.Changed("billing-month") {
		cfg.Audit.BillingMonth = o.billingMonth
	}
	if flags.Changed("base-rent") {
		cfg.Audit.BaseRent = o.baseRent
	}
	if flags.Changed("workers") {
		cfg.Audit.Workers = o.workers
	}
}

func runAudit(ctx context.Context, a *app, opts *auditOptions, files []string, out io.Writer) error {
	var events model.MoveEvents
	if opts.moves != "" {
		var err error
		events, err = a.coordinator.LoadMoveEvents(ctx, importer.FileSource(opts.moves))
		if err != nil {
			return fmt.Errorf("load move events %s: %w", opts.moves, err)
		}
	}

	sources := make([]importer.Source, 0, len(files))
	for _, f := range files {
		sources = append(sources, importer.FileSource(f))
	}

	batch := a.coordinator.Run(ctx, sources, events, nil)

	outDir, err := config.EnsureOutputDir(a.cfg, ".")
	if err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	written, err := writeOutputs(batch, outDir, opts.xlsx)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	}
	printSummary(out, batch, written)
	return nil
}

// writeOutputs 写出各文件 CSV 与可选的汇总工作簿，返回 文件名 -> 输出路径
func writeOutputs(batch *model.BatchReport, outDir string, withXLSX bool) (map[string]string, error) {
	written := make(map[string]string)
	for _, fr := range batch.Files {
		if fr.Status != model.FileStatusAudited {
			continue
		}
		path := filepath.Join(outDir, exporter.CSVFileName(fr.FileName))
		if err := writeFile(path, func(w io.Writer) error { return exporter.WriteCSV(w, fr.Table) }); err != nil {
			return written, err
		}
		written[fr.FileID] = path
	}

	if withXLSX && batch.AuditedFiles > 0 {
		path := filepath.Join(outDir, "charge-audit-"+batch.BatchID+".xlsx")
		exp := exporter.NewExporter()
		if err := writeFile(path, func(w io.Writer) error { return exp.WriteXLSX(w, batch, nil) }); err != nil {
			return written, err
		}
		written[batch.BatchID] = path
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printSummary(out io.Writer, batch *model.BatchReport, written map[string]string) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tRECORDS\tVERDICTS\tOUTPUT")
	for _, fr := range batch.Files {
		verdicts := make([]string, 0, len(fr.Verdicts))
		for _, v := range importer.OrderedVerdicts(fr.Verdicts) {
			verdicts = append(verdicts, fmt.Sprintf("%s=%d", v, fr.Verdicts[v]))
		}
		status := string(fr.Status)
		if fr.Status == model.FileStatusError {
			status += ": " + fr.Error
		}
		if fr.Duplicate {
			status += " (duplicate)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", fr.FileName, status, fr.RecordCount, strings.Join(verdicts, " "), written[fr.FileID])
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "\n%d file(s): %d audited, %d failed, %d record(s) in %s\n",
		batch.TotalFiles, batch.AuditedFiles, batch.FailedFiles, batch.TotalRecords, batch.Duration.Round(time.Millisecond))
	if path, ok := written[batch.BatchID]; ok {
		fmt.Fprintf(out, "workbook: %s\n", path)
	}
}
