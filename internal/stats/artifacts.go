package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"jumptrainer/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	RunFile      = "run.json"
	EpisodesFile = "episodes.csv"
	AgentsFile   = "agents.csv"
)

type RunArtifacts struct {
	Run      model.RunRecord
	Episodes []model.EpisodeSummary
}

// WriteRunArtifacts writes run.json, episodes.csv and agents.csv into
// outDir/<run id> and returns that directory.
func WriteRunArtifacts(outDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(outDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, RunFile), artifacts.Run); err != nil {
		return "", fmt.Errorf("write %s: %w", RunFile, err)
	}
	if err := writeEpisodes(filepath.Join(runDir, EpisodesFile), artifacts.Episodes); err != nil {
		return "", fmt.Errorf("write %s: %w", EpisodesFile, err)
	}
	if err := writeAgents(filepath.Join(runDir, AgentsFile), artifacts.Run.Agents); err != nil {
		return "", fmt.Errorf("write %s: %w", AgentsFile, err)
	}
	return runDir, nil
}

// ReadRunRecord loads run.json from an exported run directory.
func ReadRunRecord(runDir string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(runDir, RunFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

func writeEpisodes(path string, episodes []model.EpisodeSummary) error {
	rows := make([][]string, 0, len(episodes))
	for _, e := range episodes {
		rows = append(rows, []string{
			strconv.Itoa(e.Episode),
			strconv.Itoa(e.Tick),
			formatFloat(e.MeanReward),
			formatFloat(e.MeanThreshold),
			strconv.Itoa(e.Successes),
			strconv.Itoa(e.Failures),
			strconv.Itoa(e.Jumps),
		})
	}
	return writeCSV(path, []string{"episode", "tick", "mean_reward", "mean_threshold", "successes", "failures", "jumps"}, rows)
}

func writeAgents(path string, agents []model.AgentResult) error {
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, []string{
			strconv.Itoa(a.ID),
			a.Name,
			formatFloat(a.Lane),
			formatFloat(a.Threshold),
			formatFloat(a.Rate),
			formatFloat(a.Reward),
			a.Outcome,
		})
	}
	return writeCSV(path, []string{"id", "name", "lane", "threshold", "rate", "reward", "outcome"}, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return file.Sync()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
