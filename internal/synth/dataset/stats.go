package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileSummary is the per-file entry of dataset_summary.json.
type FileSummary struct {
	Filename  string         `json:"filename"`
	Examples  int            `json:"examples"`
	SizeKB    float64        `json:"size_kb"`
	Decisions map[string]int `json:"decisions"`
}

type Summary struct {
	GeneratedAt          time.Time      `json:"generated_at"`
	TotalFiles           int            `json:"total_files"`
	TotalExamples        int            `json:"total_examples"`
	TotalSizeKB          float64        `json:"total_size_kb"`
	Files                []FileSummary  `json:"files"`
	DecisionDistribution map[string]int `json:"decision_distribution"`
	Quality              Quality        `json:"quality"`
	// Failed lists files that could not be read; they are not counted.
	Failed map[string]string `json:"failed,omitempty"`
}

// Share returns the percentage of decision d across all files.
func (s Summary) Share(d string) float64 {
	total := 0
	for _, n := range s.DecisionDistribution {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(s.DecisionDistribution[d]) * 100 / float64(total)
}

// Files expands directories to their *.jsonl children, sorted by name.
func Files(paths ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(p, "*.jsonl"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

// Summarize counts examples and decision labels per file and aggregates
// quality metrics over every readable file.
func Summarize(files []string, now time.Time) Summary {
	s := Summary{GeneratedAt: now, DecisionDistribution: map[string]int{}}
	acc := newQualityAcc()
	for _, path := range files {
		fs, obs, err := summarizeFile(path)
		if err != nil {
			if s.Failed == nil {
				s.Failed = map[string]string{}
			}
			s.Failed[filepath.Base(path)] = err.Error()
			continue
		}
		acc.add(obs...)
		s.Files = append(s.Files, fs)
		s.TotalExamples += fs.Examples
		s.TotalSizeKB += fs.SizeKB
		for d, n := range fs.Decisions {
			s.DecisionDistribution[d] += n
		}
	}
	s.TotalFiles = len(s.Files)
	s.Quality = acc.result()
	return s
}

func summarizeFile(path string) (FileSummary, []observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileSummary{}, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return FileSummary{}, nil, err
	}

	fs := FileSummary{
		Filename:  filepath.Base(path),
		SizeKB:    float64(info.Size()) / 1024,
		Decisions: map[string]int{},
	}
	var (
		obs       []observation
		decodeErr error
	)
	err = eachLine(f, func(n int, line []byte) {
		var ex observation
		if err := json.Unmarshal(line, &ex); err != nil {
			if decodeErr == nil {
				decodeErr = fmt.Errorf("line %d: %w", n, err)
			}
			return
		}
		fs.Examples++
		if k := DecisionKind(ex.Decision); k != "" {
			fs.Decisions[k]++
		}
		obs = append(obs, ex)
	})
	if err != nil {
		return FileSummary{}, nil, err
	}
	if decodeErr != nil {
		return FileSummary{}, nil, decodeErr
	}
	return fs, obs, nil
}

// WriteSummary writes s as indented JSON to path.
func WriteSummary(path string, s Summary) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
