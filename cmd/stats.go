package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/dhcgn/eml-extract/config"
	"github.com/dhcgn/eml-extract/detect"
	"github.com/dhcgn/eml-extract/filter"
	"github.com/dhcgn/eml-extract/mbox"
	"github.com/dhcgn/eml-extract/message"
	"github.com/dhcgn/eml-extract/runner"
	"github.com/dhcgn/eml-extract/stats"
)

// Report categories, in print order.
const (
	CategoryFrom           = "From"
	CategorySubject        = "Subject"
	CategoryCharset        = "Charset"
	CategoryAttachmentType = "Attachment-Type"
)

var categories = []string{CategoryFrom, CategorySubject, CategoryCharset, CategoryAttachmentType}

const csvLimit = 1000

// StatsOptions configures a stats run.
type StatsOptions struct {
	Source      string
	ReportDir   string
	TopN        int
	Extensions  []string
	IncludeMbox bool
	Filter      filter.Options

	// Logger receives unreadable and unparsable messages. Nil discards them.
	Logger *slog.Logger
}

// StatsResult holds the counters of a stats run.
type StatsResult struct {
	Messages int
	Skipped  int
	Failed   int
	Counter  map[string]map[string]int
}

// NewStatsCommand returns the "stats" subcommand.
func NewStatsCommand() *cobra.Command {
	opts := StatsOptions{}
	var extensions []string

	cmd := &cobra.Command{
		Use:   "stats [directory]",
		Short: "Analyse a directory of messages and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Source = args[0]
			opts.Extensions = config.NormalizeExtensions(extensions)
			opts.Logger = slog.Default()
			fmt.Fprintln(cmd.OutOrStdout(), "Analyzing messages in:", opts.Source)

			_, err := RunStats(afero.NewOsFs(), cmd.OutOrStdout(), opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.ReportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&opts.TopN, "top", "t", 10, "Number of top items to display in statistics")
	flags.StringSliceVar(&extensions, "ext", []string{"eml"}, "Message file extensions to pick up")
	flags.BoolVar(&opts.IncludeMbox, "mbox", false, "Also analyse the messages stored in .mbox archives")
	flags.StringArrayVar(&opts.Filter.IncludeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.Filter.IncludeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&opts.Filter.ExcludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&opts.Filter.ExcludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")

	return cmd
}

// RunStats counts senders, subjects, raw charsets and attachment types of
// every message below opts.Source, prints the top entries to out and writes
// one CSV report per category.
func RunStats(fs afero.Fs, out io.Writer, opts StatsOptions) (StatsResult, error) {
	f, err := filter.New(opts.Filter)
	if err != nil {
		return StatsResult{}, fmt.Errorf("create filter: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".eml"}
	}
	if opts.IncludeMbox {
		exts = append(exts, ".mbox")
	}

	result := StatsResult{Counter: make(map[string]map[string]int)}
	for _, c := range categories {
		result.Counter[c] = make(map[string]int)
	}

	count := func(origin string, raw []byte) {
		if !f.AllowsRaw(raw) {
			result.Skipped++
			return
		}

		msg, err := message.Parse(raw)
		if err != nil {
			logger.Warn("cannot parse message", "path", origin, "err", err)
			result.Failed++
			return
		}
		result.Messages++

		if msg.From != "" {
			result.Counter[CategoryFrom][msg.From]++
		}
		if msg.Subject != "" {
			result.Counter[CategorySubject][msg.Subject]++
		}
		if name, ok := detect.DetectBytes(raw); ok {
			result.Counter[CategoryCharset][name]++
		}
		for _, a := range msg.Attachments {
			result.Counter[CategoryAttachmentType][mimetype.Detect(a.Content).String()]++
		}
	}

	for _, path := range runner.Discover(fs, opts.Source, exts, logger) {
		if opts.IncludeMbox && strings.EqualFold(filepath.Ext(path), ".mbox") {
			if err := countMbox(fs, path, count); err != nil {
				logger.Warn("cannot read mbox archive", "path", path, "err", err)
				result.Failed++
			}
			continue
		}

		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			logger.Warn("cannot read message file", "path", path, "err", err)
			result.Failed++
			continue
		}
		count(path, raw)
	}

	printStats(out, result, f.Stats(), opts.TopN)

	if err := saveCSVReports(fs, result.Counter, opts.ReportDir, csvLimit); err != nil {
		return result, fmt.Errorf("error saving CSV reports: %w", err)
	}
	fmt.Fprintf(out, "\nReports saved to directory: %s\n", opts.ReportDir)

	return result, nil
}

func countMbox(fs afero.Fs, path string, count func(string, []byte)) error {
	file, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return mbox.Each(file, func(idx int, raw []byte) error {
		count(fmt.Sprintf("%s#%d", path, idx), raw)
		return nil
	})
}

func printStats(out io.Writer, result StatsResult, filterStats filter.Stats, topN int) {
	total := result.Messages + result.Skipped
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(result.Skipped) / float64(total) * 100
	}
	fmt.Fprintf(out, "Processed %d messages (skipped %d by filters, %.2f%%, %d unreadable)...\n\n",
		result.Messages, result.Skipped, filterPercent, result.Failed)

	sections := []struct {
		title    string
		patterns []string
		hits     map[string]int
	}{
		{"Include Header Filters", filterStats.IncludeHeaderPatterns, filterStats.IncludeHeaderHits},
		{"Include Body Filters", filterStats.IncludeBodyPatterns, filterStats.IncludeBodyHits},
		{"Exclude Header Filters", filterStats.ExcludeHeaderPatterns, filterStats.ExcludeHeaderHits},
		{"Exclude Body Filters", filterStats.ExcludeBodyPatterns, filterStats.ExcludeBodyHits},
	}
	hasFilterStats := false
	for _, s := range sections {
		if len(s.patterns) == 0 {
			continue
		}
		hasFilterStats = true
		fmt.Fprintf(out, "%s:\n", s.title)
		printFilterHits(out, s.patterns, s.hits)
		fmt.Fprintln(out)
	}
	if hasFilterStats {
		fmt.Fprintln(out, "---")
		fmt.Fprintln(out)
	}

	for _, c := range categories {
		fmt.Fprintf(out, "Top %d %s:\n", topN, c)
		stats.PrettyPrintTop(out, result.Counter[c], topN)
		fmt.Fprintln(out)
	}
}

func saveCSVReports(fs afero.Fs, counter map[string]map[string]int, dir string, limit int) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, c := range categories {
		path := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeCategoryName(c)))
		if err := writeCSV(fs, path, stats.SortedPairs(counter[c]), limit); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func writeCSV(fs afero.Fs, path string, pairs []stats.Pair, limit int) error {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for i := 0; i < limit && i < len(pairs); i++ {
		if err := writer.Write([]string{pairs[i].Key, strconv.Itoa(pairs[i].Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func normalizeCategoryName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}

func printFilterHits(out io.Writer, patterns []string, hits map[string]int) {
	sorted := append([]string(nil), patterns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if hits[sorted[i]] != hits[sorted[j]] {
			return hits[sorted[i]] > hits[sorted[j]]
		}
		return sorted[i] < sorted[j]
	})

	for _, p := range sorted {
		if hits[p] > 0 {
			fmt.Fprintf(out, "  ✓ %s: %d hits\n", p, hits[p])
		} else {
			fmt.Fprintf(out, "  ✗ %s: 0 hits\n", p)
		}
	}
}
