package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shop-rank-tracker/internal/ranking"
	"shop-rank-tracker/internal/search"
	"shop-rank-tracker/internal/storage"
)

// TargetInput is a target as typed on the command line or listed in an import file.
type TargetInput struct {
	Keyword    string `yaml:"keyword"`
	MatchMode  string `yaml:"match_mode"`
	MatchValue string `yaml:"match_value"`
	Sort       string `yaml:"sort"`
	Active     *bool  `yaml:"active"`
}

func (in TargetInput) target() (storage.Target, error) {
	modeName := in.MatchMode
	if modeName == "" {
		modeName = string(ranking.MatchStore)
	}
	mode, err := ranking.ParseMatchMode(modeName)
	if err != nil {
		return storage.Target{}, err
	}
	sort, err := search.ParseSortMode(in.Sort)
	if err != nil {
		return storage.Target{}, err
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}
	t := storage.Target{
		Keyword:    in.Keyword,
		MatchMode:  mode,
		MatchValue: in.MatchValue,
		Sort:       sort,
		Active:     active,
	}
	return t, t.Validate()
}

// TargetEdit holds the flags an operator actually set.
type TargetEdit struct {
	Keyword    *string
	MatchMode  *string
	MatchValue *string
	Sort       *string
}

// AddTarget registers a new target.
func (a *App) AddTarget(ctx context.Context, in TargetInput) error {
	t, err := in.target()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	created, err := store.CreateTarget(ctx, t)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("target_id", created.ID).Str("keyword", created.Keyword).Msg("target added")
	fmt.Fprintf(a.Out, "added target %d: %s\n", created.ID, created.Keyword)
	return nil
}

// ListTargets prints every target.
func (a *App) ListTargets(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	targets, err := store.ListTargets(ctx, false)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Fprintln(a.Out, "no targets registered")
		return nil
	}

	loc := a.Config.Location()
	writer := newTable(a.Out)
	fmt.Fprintln(writer, "ID\tKeyword\tMatch\tValue\tSort\tActive\tUpdated")
	for _, t := range targets {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			t.ID,
			t.Keyword,
			t.MatchMode,
			sanitizeInline(t.MatchValue),
			t.Sort,
			t.Active,
			t.UpdatedAt.In(loc).Format(timeLayout),
		)
	}
	writer.Flush()
	return nil
}

// EditTarget applies the set fields of edit.
func (a *App) EditTarget(ctx context.Context, id int64, edit TargetEdit) error {
	var patch storage.TargetPatch
	patch.Keyword = edit.Keyword
	patch.MatchValue = edit.MatchValue
	if edit.MatchMode != nil {
		mode, err := ranking.ParseMatchMode(*edit.MatchMode)
		if err != nil {
			return err
		}
		patch.MatchMode = &mode
	}
	if edit.Sort != nil {
		sort, err := search.ParseSortMode(*edit.Sort)
		if err != nil {
			return err
		}
		patch.Sort = &sort
	}
	if patch.Empty() {
		return errors.New("nothing to change")
	}
	return a.updateTarget(ctx, id, patch, "updated")
}

// SetTargetActive enables or disables a target.
func (a *App) SetTargetActive(ctx context.Context, id int64, active bool) error {
	verb := "disabled"
	if active {
		verb = "enabled"
	}
	return a.updateTarget(ctx, id, storage.TargetPatch{Active: &active}, verb)
}

func (a *App) updateTarget(ctx context.Context, id int64, patch storage.TargetPatch, verb string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	updated, err := store.UpdateTarget(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("update target %d: %w", id, err)
	}
	fmt.Fprintf(a.Out, "%s target %d: %s\n", verb, updated.ID, updated.Keyword)
	return nil
}

// RemoveTarget deletes a target and its history.
func (a *App) RemoveTarget(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteTarget(ctx, id); err != nil {
		return fmt.Errorf("remove target %d: %w", id, err)
	}
	a.Logger.Info().Int64("target_id", id).Msg("target removed")
	fmt.Fprintf(a.Out, "removed target %d\n", id)
	return nil
}

type importFile struct {
	Targets []TargetInput `yaml:"targets"`
}

// ImportTargets creates every target listed in a YAML file. The file is validated
// completely before anything is written.
func (a *App) ImportTargets(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	var file importFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("decode import file: %w", err)
	}
	if len(file.Targets) == 0 {
		return errors.New("import file lists no targets")
	}

	targets := make([]storage.Target, 0, len(file.Targets))
	for i, in := range file.Targets {
		t, err := in.target()
		if err != nil {
			return fmt.Errorf("target %d (%q): %w", i+1, in.Keyword, err)
		}
		targets = append(targets, t)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, t := range targets {
		if _, err := store.CreateTarget(ctx, t); err != nil {
			return err
		}
	}
	fmt.Fprintf(a.Out, "imported %d target(s)\n", len(targets))
	return nil
}
