// Package report renders a run result for humans and CI: plain summary,
// JSON, TAP version 13 and JUnit XML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gridstone.dev/internal/result"
)

// Render writes the run result in the named format.
func Render(w io.Writer, format string, r result.RunResult) error {
	switch format {
	case "summary":
		return Summary(w, r)
	case "json":
		return JSON(w, r)
	case "tap":
		return TAP(w, r)
	case "junit":
		return JUnit(w, r)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func statusMark(o result.Outcome) string {
	switch o {
	case result.Passed:
		return "PASS"
	case result.Failed:
		return "FAIL"
	case result.Errored:
		return "ERROR"
	case result.Skipped:
		return "SKIP"
	}
	return "?"
}

// Summary prints one line per test and the run totals.
func Summary(w io.Writer, r result.RunResult) error {
	for _, tr := range r.PerTest {
		line := fmt.Sprintf("%-5s %s", statusMark(tr.Outcome), tr.Name)
		switch tr.Outcome {
		case result.Passed, result.Failed:
			line += fmt.Sprintf("  (%d ticks, %s)", tr.Ticks, tr.Elapsed.Round(1e6))
		default:
			if tr.Reason != "" {
				line += "  (" + tr.Reason + ")"
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if tr.Outcome == result.Failed && tr.Failure != nil {
			f := tr.Failure
			if _, err := fmt.Fprintf(w, "      at %v tick %d: expected %s, got %s\n",
				f.Pos, f.Tick, f.Expected, f.Actual); err != nil {
				return err
			}
		}
	}

	s := r.Summary
	parts := []string{fmt.Sprintf("%d passed", s.Passed), fmt.Sprintf("%d failed", s.Failed)}
	if s.Errored > 0 {
		parts = append(parts, fmt.Sprintf("%d errored", s.Errored))
	}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", s.Skipped))
	}
	_, err := fmt.Fprintf(w, "\n%d tests: %s in %s\n",
		s.Total, strings.Join(parts, ", "), s.Duration.Round(1e6))
	return err
}

// JSON writes the run result as indented JSON.
func JSON(w io.Writer, r result.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// TAP writes Test Anything Protocol version 13 output. Failures carry a YAML
// diagnostic block; skipped tests use a SKIP directive.
func TAP(w io.Writer, r result.RunResult) error {
	if _, err := fmt.Fprintf(w, "TAP version 13\n1..%d\n", len(r.PerTest)); err != nil {
		return err
	}

	firstFailure := map[string]*result.FailureDetail{}
	for i := range r.Failures {
		f := &r.Failures[i]
		if _, ok := firstFailure[f.Test]; !ok {
			firstFailure[f.Test] = f
		}
	}

	for i, tr := range r.PerTest {
		n := i + 1
		switch tr.Outcome {
		case result.Passed:
			fmt.Fprintf(w, "ok %d - %s\n", n, tr.Name)
		case result.Skipped:
			fmt.Fprintf(w, "ok %d - %s # SKIP %s\n", n, tr.Name, tr.Reason)
		case result.Failed:
			fmt.Fprintf(w, "not ok %d - %s\n", n, tr.Name)
			if f, ok := firstFailure[tr.Name]; ok {
				fmt.Fprintln(w, "  ---")
				fmt.Fprintf(w, "  message: \"expected %s, got %s\"\n", f.Expected, f.Actual)
				fmt.Fprintf(w, "  at: [%d, %d, %d]\n", f.Pos.X, f.Pos.Y, f.Pos.Z)
				fmt.Fprintf(w, "  tick: %d\n", f.Tick)
				fmt.Fprintln(w, "  ...")
			}
		case result.Errored:
			fmt.Fprintf(w, "not ok %d - %s\n", n, tr.Name)
			fmt.Fprintln(w, "  ---")
			fmt.Fprintf(w, "  message: %q\n", tr.Reason)
			fmt.Fprintln(w, "  ...")
		}
	}
	return nil
}

// JUnit writes JUnit XML. The test name's directory-style prefix, if any,
// becomes the classname.
func JUnit(w io.Writer, r result.RunResult) error {
	s := r.Summary
	secs := s.Duration.Seconds()

	fmt.Fprintln(w, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(w, "<testsuites tests=\"%d\" failures=\"%d\" errors=\"%d\" skipped=\"%d\" time=\"%.3f\">\n",
		s.Total, s.Failed, s.Errored, s.Skipped, secs)
	fmt.Fprintf(w, "  <testsuite name=\"gridstone\" tests=\"%d\" failures=\"%d\" errors=\"%d\" skipped=\"%d\" time=\"%.3f\">\n",
		s.Total, s.Failed, s.Errored, s.Skipped, secs)

	for _, tr := range r.PerTest {
		classname, name := "", tr.Name
		if i := strings.LastIndexByte(tr.Name, '/'); i >= 0 {
			classname, name = tr.Name[:i], tr.Name[i+1:]
		}
		open := fmt.Sprintf("    <testcase classname=\"%s\" name=\"%s\" time=\"%.3f\"",
			xmlEscape(classname), xmlEscape(name), tr.Elapsed.Seconds())

		switch tr.Outcome {
		case result.Passed:
			fmt.Fprintln(w, open+" />")
		case result.Failed:
			fmt.Fprintln(w, open+">")
			if f := tr.Failure; f != nil {
				fmt.Fprintf(w, "      <failure message=\"expected %s, got %s at (%d,%d,%d) tick %d\"/>\n",
					xmlEscape(f.Expected), xmlEscape(f.Actual), f.Pos.X, f.Pos.Y, f.Pos.Z, f.Tick)
			} else {
				fmt.Fprintln(w, `      <failure message="assertion failed"/>`)
			}
			fmt.Fprintln(w, "    </testcase>")
		case result.Errored:
			fmt.Fprintln(w, open+">")
			fmt.Fprintf(w, "      <error message=\"%s\"/>\n", xmlEscape(tr.Reason))
			fmt.Fprintln(w, "    </testcase>")
		case result.Skipped:
			fmt.Fprintln(w, open+">")
			fmt.Fprintf(w, "      <skipped message=\"%s\"/>\n", xmlEscape(tr.Reason))
			fmt.Fprintln(w, "    </testcase>")
		}
	}

	fmt.Fprintln(w, "  </testsuite>")
	_, err := fmt.Fprintln(w, "</testsuites>")
	return err
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
