package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gridstone.dev/internal/engine"
	"gridstone.dev/internal/report"
	"gridstone.dev/internal/spec"
)

const interactHelp = `commands:
  run [name]            run all loaded tests, or one by name
  run -t <tag>[,tag]    run tests matching any of the tags
  list                  list indexed tests
  search <term>         find indexed tests by name or tag
  runs                  show recent run history
  reload                rescan the test directory and refresh the index

  record <x> <y> <z> [radius]   start recording around a position
  tick [n]              advance the recording by n ticks (default 1)
  assert <x> <y> <z>    record a check for the block at a position
  changes               turn pending diffs into checks instead of actions
  save <name> [tag...]  save the recording as a test definition
  cancel                discard the recording and resume time

  help                  this text
  quit                  exit`

// interact runs the authoring command loop on stdin. Breakpoint pauses
// prompt inline: "s" steps one tick, anything else continues.
func (a *app) interact(ctx context.Context) error {
	in := bufio.NewScanner(os.Stdin)
	fmt.Println(interactHelp)

	ctrl := engine.ControllerFunc(func(tick int, reason string) engine.Command {
		fmt.Printf("paused at %s. [s]tep or [c]ontinue? ", reason)
		if in.Scan() && strings.TrimSpace(in.Text()) == "s" {
			return engine.Step
		}
		return engine.Continue
	})

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]

		var err error
		switch cmd {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println(interactHelp)
		case "run":
			err = a.cmdRun(ctx, args, ctrl)
		case "list":
			err = a.cmdList(ctx)
		case "search":
			err = a.cmdSearch(ctx, args)
		case "runs":
			err = a.cmdRuns(ctx)
		case "reload":
			_, err = a.loadTests(ctx, nil)
		case "record":
			err = a.cmdRecord(ctx, args)
		case "tick":
			err = a.cmdTick(ctx, args)
		case "assert":
			err = a.cmdAssert(ctx, args)
		case "changes":
			err = a.rec.AssertChanges()
		case "save":
			err = a.cmdSave(ctx, args)
		case "cancel":
			err = a.rec.Cancel(ctx)
		default:
			err = fmt.Errorf("unknown command %q (try help)", cmd)
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (a *app) cmdRun(ctx context.Context, args []string, ctrl engine.Controller) error {
	var tagFilter []string
	var name string
	if len(args) >= 2 && args[0] == "-t" {
		tagFilter = splitTags(args[1])
	} else if len(args) == 1 {
		name = args[0]
	}

	tests, err := a.loadTests(ctx, tagFilter)
	if err != nil {
		return err
	}
	if name != "" {
		found := tests[:0:0]
		for _, t := range tests {
			if t.Name == name {
				found = append(found, t)
			}
		}
		if len(found) == 0 {
			return fmt.Errorf("no test named %q", name)
		}
		tests = found
	}
	if len(tests) == 0 {
		return fmt.Errorf("nothing to run")
	}

	rr, runErr := a.runTests(ctx, tests, ctrl)
	if runErr != nil {
		fmt.Println("run aborted:", runErr)
	}
	return report.Summary(os.Stdout, rr)
}

func (a *app) cmdList(ctx context.Context) error {
	if a.idx == nil {
		return fmt.Errorf("index disabled")
	}
	entries, err := a.idx.Tests(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-30s %3d items, last tick %d", e.Name, e.TimelineItems, e.MaxTick)
		if len(e.Tags) > 0 {
			line += "  [" + strings.Join(e.Tags, ", ") + "]"
		}
		fmt.Println(line)
	}
	fmt.Printf("%d tests indexed\n", len(entries))
	return nil
}

func (a *app) cmdSearch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: search <term>")
	}
	if a.idx == nil {
		return fmt.Errorf("index disabled")
	}
	term := strings.ToLower(args[0])
	entries, err := a.idx.Tests(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		hit := strings.Contains(strings.ToLower(e.Name), term)
		for _, tag := range e.Tags {
			hit = hit || strings.Contains(strings.ToLower(tag), term)
		}
		if hit {
			fmt.Printf("%-30s %s\n", e.Name, e.Path)
			n++
		}
	}
	fmt.Printf("%d matches\n", n)
	return nil
}

func (a *app) cmdRuns(ctx context.Context) error {
	if a.idx == nil {
		return fmt.Errorf("index disabled")
	}
	runs, err := a.idx.Runs(ctx, 10)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("#%d  %s  %d tests: %d passed, %d failed, %d errored, %d skipped (%s)\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Summary.Total, r.Summary.Passed, r.Summary.Failed,
			r.Summary.Errored, r.Summary.Skipped, r.Summary.Duration.Round(1e6))
	}
	return nil
}

func (a *app) cmdRecord(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: record <x> <y> <z> [radius]")
	}
	pos, err := parsePos(args[:3])
	if err != nil {
		return err
	}
	radius := a.cfg.Record.Radius
	if len(args) >= 4 {
		if radius, err = strconv.Atoi(args[3]); err != nil {
			return fmt.Errorf("bad radius %q", args[3])
		}
	}
	if err := a.rec.Start(ctx, pos, radius); err != nil {
		return err
	}
	fmt.Printf("recording around %v, radius %d; build away\n", pos, radius)
	return nil
}

func (a *app) cmdTick(ctx context.Context, args []string) error {
	n := 1
	if len(args) >= 1 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n < 1 {
			return fmt.Errorf("bad tick count %q", args[0])
		}
	}
	for i := 0; i < n; i++ {
		if err := a.rec.Poll(ctx); err != nil {
			return err
		}
		if err := a.rec.Advance(ctx); err != nil {
			return err
		}
	}
	fmt.Printf("now at tick %d\n", a.rec.Tick())
	return nil
}

func (a *app) cmdAssert(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: assert <x> <y> <z>")
	}
	pos, err := parsePos(args)
	if err != nil {
		return err
	}
	return a.rec.Assert(ctx, pos)
}

func (a *app) cmdSave(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: save <name> [tag...]")
	}
	name := args[0]
	tags := args[1:]

	t, err := a.rec.Save(ctx, name, "", tags)
	if err != nil {
		return err
	}
	path := filepath.Join(a.cfg.Record.OutDir, name+".test.json")
	if err := spec.WriteTest(t, path); err != nil {
		return err
	}
	fmt.Printf("saved %s (%d timeline items)\n", path, len(t.Timeline))

	// A fresh recording should be runnable immediately.
	_, err = a.loadTests(ctx, nil)
	return err
}

func parsePos(args []string) (spec.Vec3i, error) {
	var out [3]int
	for i, s := range args {
		v, err := strconv.Atoi(s)
		if err != nil {
			return spec.Vec3i{}, fmt.Errorf("bad coordinate %q", s)
		}
		out[i] = v
	}
	return spec.Vec3i{X: out[0], Y: out[1], Z: out[2]}, nil
}
