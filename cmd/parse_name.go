package main

import (
	"bufio"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/resolve"
)

var parseNameInput string

// parseNameResult pairs an input with its parse. Error is set for names that
// had nothing parseable.
type parseNameResult struct {
	Input  string            `json:"input"`
	Parsed *model.ParsedName `json:"parsed,omitempty"`
	Error  string            `json:"error,omitempty"`
}

var parseNameCmd = &cobra.Command{
	Use:   "parse-name [name...]",
	Short: "Parse free-text juror names",
	Long:  "Parses each argument, or each line of --input, into first/middle/last/suffix with phonetic codes and a confidence score.",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if parseNameInput != "" {
			lines, err := readLines(parseNameInput, cmd)
			if err != nil {
				return err
			}
			names = append(names, lines...)
		}
		if len(names) == 0 {
			return eris.New("parse-name: no names given")
		}
		return printJSON(cmd.OutOrStdout(), parseNames(names))
	},
}

func init() {
	parseNameCmd.Flags().StringVar(&parseNameInput, "input", "", "file with one name per line (- for stdin)")
	rootCmd.AddCommand(parseNameCmd)
}

func parseNames(names []string) []parseNameResult {
	out := make([]parseNameResult, 0, len(names))
	for _, n := range names {
		res := parseNameResult{Input: n}
		p, err := resolve.ParseName(n)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Parsed = &p
		}
		out = append(out, res)
	}
	return out
}

func readLines(path string, cmd *cobra.Command) ([]string, error) {
	r, err := openInput(path, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, eris.Wrap(sc.Err(), "read names")
}
