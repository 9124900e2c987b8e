package trainers

import (
	"encoding/json"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// File names inside an output or checkpoint directory.
const (
	ConfigFileName  = "config.json"
	StateFileName   = "trainer_state.json"
	WeightsFileName = "model.safetensors"
)

var checkpointDirRe = regexp.MustCompile(`^checkpoint-(\d+)$`)

// LastCheckpoint returns the path of the highest-numbered "checkpoint-<step>"
// directory under dir, or "" if there is none (including when dir itself does
// not exist).
func LastCheckpoint(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	best, bestStep := "", -1
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := checkpointDirRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		step, err := strconv.Atoi(m[1])
		if err != nil || step <= bestStep {
			continue
		}
		best, bestStep = path.Join(dir, entry.Name()), step
	}
	return best
}

// ListCheckpoints returns every checkpoint directory under dir, ordered by step.
func ListCheckpoints(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	type ckpt struct {
		path string
		step int
	}
	var found []ckpt
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := checkpointDirRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		step, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, ckpt{path.Join(dir, entry.Name()), step})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].step < found[j].step })
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.path
	}
	return out
}

// ModelConfig is the config.json written next to final model weights. Its
// presence in an output directory marks training as completed.
type ModelConfig struct {
	Task      string            `json:"task"`
	NumLabels int               `json:"num_labels"`
	ID2Label  map[string]string `json:"id2label"`
	Label2ID  map[string]int    `json:"label2id"`

	// LabelTokens maps each label to the reserved vocabulary token assigned to
	// it, so generative uses of the fine-tuned model agree with the classifier.
	LabelTokens map[string]string `json:"label_tokens,omitempty"`
}

// TrainerState is the trainer_state.json bookkeeping saved with checkpoints
// and final models.
type TrainerState struct {
	RunID       string             `json:"run_id"`
	Task        string             `json:"task"`
	Epoch       int                `json:"epoch"`
	BestMetric  float64            `json:"best_metric,omitempty"`
	TrialParams map[string]float64 `json:"trial_params,omitempty"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
}

// WriteJSON marshals v indented into path.
func WriteJSON(filePath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %q", filePath)
	}
	if err := os.WriteFile(filePath, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "failed to write %q", filePath)
	}
	return nil
}

// ReadJSON unmarshals path into v.
func ReadJSON(filePath string, v any) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read %q", filePath)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to parse %q", filePath)
	}
	return nil
}
