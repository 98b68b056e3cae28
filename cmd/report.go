// File: cmd/report.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/xkilldash9x/autopass/internal/attempt"
	"github.com/xkilldash9x/autopass/internal/browser"
	"github.com/xkilldash9x/autopass/internal/coordinator"
)

// printResult writes the one-line summary of a finished run.
func printResult(w io.Writer, res coordinator.Result, resumePath string) {
	switch {
	case res.State == coordinator.StateSucceeded:
		fmt.Fprintf(w, "[+] Login succeeded: %s (mode %s, %d attempts)\n", describeCandidate(*res.Winner), res.Mode, res.Attempts)
	case res.State == coordinator.StateExhausted:
		fmt.Fprintf(w, "[-] No valid credentials found (mode %s, %d attempts).\n", res.Mode, res.Attempts)
	case res.FormMissing:
		fmt.Fprintf(w, "[!] Login form not found after %d attempts; progress saved to %s. Check the page, then re-run with --resume.\n", res.Attempts, resumePath)
	default:
		fmt.Fprintf(w, "[!] Run stopped after %d attempts; progress saved to %s. Re-run with --resume to continue.\n", res.Attempts, resumePath)
	}
}

func describeCandidate(c attempt.Candidate) string {
	if c.Username == nil {
		return fmt.Sprintf("password %q", c.Password)
	}
	return fmt.Sprintf("username %q password %q", *c.Username, c.Password)
}

// printReport writes what the locators found on a page.
func printReport(w io.Writer, rep attempt.Report) {
	fmt.Fprintf(w, "Page:           %s\n", rep.URL)
	fmt.Fprintf(w, "Success rule:   %s\n", rep.Rule)
	fmt.Fprintf(w, "Inputs:         %d\n", len(rep.Inputs))
	fmt.Fprintf(w, "Username field: %s\n", describeInput(rep.Username))
	fmt.Fprintf(w, "Password field: %s\n", describeInput(rep.Password))

	if len(rep.Combinations) > 0 {
		fmt.Fprintln(w, "Field combinations:")
		for i, pair := range rep.Combinations {
			fmt.Fprintf(w, "  %d. %s + %s\n", i+1, describeInput(pair.Username), describeInput(pair.Password))
		}
	}

	if len(rep.Submit) == 0 {
		fmt.Fprintln(w, "Submit controls: none, Enter key and form submit fallback")
		return
	}
	fmt.Fprintln(w, "Submit controls, in click order:")
	for i, el := range rep.Submit {
		fmt.Fprintf(w, "  %d. %s\n", i+1, describeClickable(el))
	}
}

func describeInput(in *browser.InputDescriptor) string {
	if in == nil {
		return "(none)"
	}
	parts := []string{"<input type=" + in.Type}
	for _, kv := range [][2]string{{"id", in.ID}, {"name", in.Name}, {"placeholder", in.Placeholder}, {"aria-label", in.AriaLabel}} {
		if kv[1] != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", kv[0], kv[1]))
		}
	}
	return strings.Join(parts, " ") + ">"
}

func describeClickable(el browser.ClickableDescriptor) string {
	parts := []string{"<" + el.Tag}
	for _, kv := range [][2]string{{"type", el.Type}, {"id", el.ID}, {"class", el.Class}, {"value", el.Value}} {
		if kv[1] != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", kv[0], kv[1]))
		}
	}
	out := strings.Join(parts, " ") + ">"
	if el.Text != "" {
		out += " " + el.Text
	}
	return out
}
