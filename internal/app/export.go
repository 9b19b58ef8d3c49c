package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"shop-rank-tracker/internal/report"
	"shop-rank-tracker/internal/storage"
)

// ExportOptions hold parameters for exporting observation history.
type ExportOptions struct {
	Days      int
	TargetID  int64
	CSVPath   string
	PNGPath   string
	MaxPoints int
}

// Export renders observation history as CSV and/or a PNG rank chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Days <= 0 {
		return errors.New("days must be greater than zero")
	}
	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	since := time.Now().AddDate(0, 0, -opts.Days)
	entries, err := store.History(ctx, since)
	if err != nil {
		return err
	}
	if opts.TargetID != 0 {
		entries = filterTarget(entries, opts.TargetID)
	}
	if len(entries) == 0 {
		a.Logger.Info().Int("days", opts.Days).Msg("no observations found for export window")
		fmt.Fprintln(a.Out, "no observations to export")
		return nil
	}

	if opts.CSVPath != "" {
		path := a.exportPath(opts.CSVPath)
		if err := writeFile(path, func(f *os.File) error {
			return report.WriteCSV(f, entries, a.Config.Location())
		}); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		a.Logger.Info().Str("path", path).Int("rows", len(entries)).Msg("csv exported")
		fmt.Fprintf(a.Out, "wrote %d row(s) to %s\n", len(entries), path)
	}

	if opts.PNGPath != "" {
		path := a.exportPath(opts.PNGPath)
		if err := writeFile(path, func(f *os.File) error {
			return report.RenderPNG(f, entries, opts.MaxPoints)
		}); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		a.Logger.Info().Str("path", path).Msg("chart exported")
		fmt.Fprintf(a.Out, "wrote chart to %s\n", path)
	}
	return nil
}

func filterTarget(entries []storage.HistoryEntry, id int64) []storage.HistoryEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.TargetID == id {
			out = append(out, e)
		}
	}
	return out
}

// exportPath resolves relative paths against export.dir.
func (a *App) exportPath(path string) string {
	if filepath.IsAbs(path) || a.Config.Export.Dir == "" {
		return path
	}
	return filepath.Join(a.Config.Export.Dir, path)
}

func writeFile(path string, write func(f *os.File) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
