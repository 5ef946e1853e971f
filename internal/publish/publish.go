// Package publish renders plans as markdown for export and display.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowbit-labs/flowbit-pulse/internal/model"
)

// PlanDoc pairs a plan with its markdown rendering so output code can pick either.
type PlanDoc struct {
	*model.TodayPlan
}

func (d PlanDoc) Markdown() string { return RenderPlanMarkdown(d.TodayPlan) }

type WriteOptions struct {
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WritePlan writes <toDir>/plans/<date>.md.
func WritePlan(p *model.TodayPlan, toDir string, opt WriteOptions) (WriteResult, error) {
	if p == nil {
		return WriteResult{}, errors.New("no plan to export")
	}
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	name := strings.TrimSpace(p.Date)
	if name == "" {
		name = "today"
	}
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)

	outDir := filepath.Join(toDir, "plans")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WriteResult{}, err
	}
	outPath := filepath.Join(outDir, name+".md")
	if err := writeFile(outPath, []byte(RenderPlanMarkdown(p)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Written: []string{outPath}}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
