package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/scamcheck/internal/config"
	"github.com/gonkalabs/scamcheck/internal/detector"
)

func newCheckCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check [message]",
		Short: "Analyze one message (read from stdin when no argument is given)",
		Long: "Analyze one message and print the verdict. " +
			"Exits with status 2 when the message looks like a scam.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			var message string
			if len(args) == 1 {
				message = args[0]
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				message = string(b)
			}

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.detector.Analyze(cmd.Context(), message)
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
				return err
			}
			if res.Scam {
				return errScam
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printResult(w io.Writer, res *detector.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if !res.Scam {
		_, err := fmt.Fprintln(w, "NOT a scam")
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SCAM (%s)\n", res.Source)
	switch {
	case res.Explanation != "":
		fmt.Fprintf(&b, "\nWhy it might be a scam:\n%s\n", res.Explanation)
	case res.ExplanationError != "":
		fmt.Fprintf(&b, "\n%s\n", res.ExplanationError)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
