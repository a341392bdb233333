package orchestrator

import (
	"os"
	"path/filepath"
	"strings"

	"researchrun/internal/model"
)

func stageInPrePivot(s model.Stage) bool {
	return s == model.StageInit || s == model.StageWave1
}

func stageInPostPivot(s model.Stage) bool {
	return s == model.StagePivot || s == model.StageWave2 || s == model.StageCitations
}

func stageInPostSummaries(s model.Stage) bool {
	return s == model.StageSummaries || s == model.StageSynthesis || s == model.StageReview
}

// readRawFile reads a plain-text artifact (a wave output markdown file,
// not a JSON document) directly off disk.
func readRawFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readAllMarkdown reads every .md file directly under dir, skipping
// anything it can't read rather than failing the whole tick — a stage
// whose wave directory is still partially populated should still let
// citation extraction run over what is there.
func readAllMarkdown(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		text, err := readRawFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, text)
	}
	return out
}
