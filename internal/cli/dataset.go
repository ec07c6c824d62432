package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/trajgen/server/internal/synth/dataset"
)

const maxPrintedProblems = 10

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.jsonl>",
		Short: "Check that every record has the training data shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := dataset.ValidateFile(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "VALIDATING: %s\n", filepath.Base(args[0]))
			if rep.OK() {
				fmt.Fprintln(w, "ALL EXAMPLES VALID")
			} else {
				fmt.Fprintf(w, "VALIDATION FAILED: %d problems\n", len(rep.Problems))
				for i, p := range rep.Problems {
					if i == maxPrintedProblems {
						fmt.Fprintf(w, "  ... and %d more\n", len(rep.Problems)-maxPrintedProblems)
						break
					}
					fmt.Fprintf(w, "  - %s\n", p)
				}
			}
			fmt.Fprintf(w, "Total: %d  Valid: %d  Invalid: %d\n", rep.Total, rep.Valid, rep.Invalid)
			if !rep.OK() {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats [file-or-dir...]",
		Short: "Summarize decision distribution across JSONL datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"samples"}
			}
			files, err := dataset.Files(args...)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no .jsonl files found in %v", args)
			}

			s := dataset.Summarize(files, time.Now())
			w := cmd.OutOrStdout()
			for _, f := range s.Files {
				fmt.Fprintf(w, "%s\n   Examples: %d\n   Size: %.1f KB\n   Decisions: %v\n", f.Filename, f.Examples, f.SizeKB, f.Decisions)
			}
			for name, reason := range s.Failed {
				fmt.Fprintf(w, "error processing %s: %s\n", name, reason)
			}
			fmt.Fprintf(w, "Total files: %d\nTotal examples: %d\nTotal size: %.1f KB\n", s.TotalFiles, s.TotalExamples, s.TotalSizeKB)

			decisions := make([]string, 0, len(s.DecisionDistribution))
			for d := range s.DecisionDistribution {
				decisions = append(decisions, d)
			}
			sort.Strings(decisions)
			for _, d := range decisions {
				fmt.Fprintf(w, "  %s: %d (%.1f%%)\n", d, s.DecisionDistribution[d], s.Share(d))
			}
			printQuality(w, s)

			if output == "" {
				output = filepath.Join(filepath.Dir(files[0]), "dataset_summary.json")
			}
			if err := dataset.WriteSummary(output, s); err != nil {
				return err
			}
			fmt.Fprintf(w, "Summary saved to: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "Summary path (default: dataset_summary.json next to the first file)")
	return cmd
}

func printQuality(w io.Writer, s dataset.Summary) {
	q := s.Quality

	fmt.Fprintf(w, "COT length: mean %.0f, median %.0f, range %d-%d chars\n",
		q.COTLength.Mean, q.COTLength.Median, q.COTLength.Min, q.COTLength.Max)
	fmt.Fprintf(w, "Query length: mean %.0f, median %.0f chars\n", q.QueryLength.Mean, q.QueryLength.Median)

	iterations := make([]int, 0, len(q.Iterations))
	for it := range q.Iterations {
		iterations = append(iterations, it)
	}
	sort.Ints(iterations)
	fmt.Fprintln(w, "Iterations:")
	for _, it := range iterations {
		fmt.Fprintf(w, "  Iteration %d: %d (%.1f%%)\n", it, q.Iterations[it], percent(q.Iterations[it], s.TotalExamples))
	}

	fmt.Fprintf(w, "Tool usage (%.2f tools per CALL):\n", q.ToolsPerCall())
	printCounts(w, q.ToolUsage, q.CallRecords)

	fmt.Fprintf(w, "Queries: %d unique of %d, duplicate rate %.1f%% (%s diversity)\n",
		q.UniqueQueries, s.TotalExamples, q.DuplicateRate*100, q.DiversityLevel())
	fmt.Fprintln(w, "Personas:")
	printCounts(w, q.Personas, s.TotalExamples)
	fmt.Fprintln(w, "Complexities:")
	printCounts(w, q.Complexities, s.TotalExamples)
	fmt.Fprintln(w, "Tool data modes:")
	printCounts(w, q.ToolDataMode, s.TotalExamples)

	issues := q.Issues(s.DecisionDistribution, s.TotalExamples)
	if len(issues) == 0 {
		fmt.Fprintln(w, "All quality checks passed")
		return
	}
	fmt.Fprintln(w, "Quality issues:")
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

func printCounts(w io.Writer, counts map[string]int, total int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d (%.1f%%)\n", k, counts[k], percent(counts[k], total))
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
