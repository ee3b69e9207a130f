// Command runlog inspects the compressed event stream a run leaves behind:
// a summary of what the engine did, or the full event list.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"gridstone.dev/internal/runlog"
)

func main() {
	var (
		verbose = flag.Bool("v", false, "print every entry instead of a summary")
		test    = flag.String("test", "", "only entries for this test")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runlog [-v] [-test name] <run-*.jsonl.zst>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if *verbose {
		err := runlog.Read(path, func(e runlog.Entry) error {
			if *test != "" && e.Test != *test {
				return nil
			}
			printEntry(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		return
	}

	if err := summarize(path, *test); err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
}

func printEntry(e runlog.Entry) {
	line := fmt.Sprintf("%s chunk=%d tick=%-5d %s", e.Time.Format("15:04:05.000"), e.Chunk, e.Tick, e.Kind)
	if e.Test != "" {
		line += " test=" + e.Test
	}
	if e.Kind == runlog.KindAdvance && e.Ticks > 1 {
		line += fmt.Sprintf(" x%d", e.Ticks)
	}
	if e.OK != nil {
		if *e.OK {
			line += " ok"
		} else {
			line += " FAILED"
		}
	}
	if e.Detail != "" {
		line += " " + e.Detail
	}
	fmt.Println(line)
}

type chunkStats struct {
	ticksAdvanced int
	actions       int
	checksOK      int
	checksFailed  int
	pauses        int
	cleanups      int
	transportErrs int
}

func summarize(path, test string) error {
	perChunk := map[int]*chunkStats{}
	total := 0

	err := runlog.Read(path, func(e runlog.Entry) error {
		if test != "" && e.Test != "" && e.Test != test {
			return nil
		}
		total++
		cs := perChunk[e.Chunk]
		if cs == nil {
			cs = &chunkStats{}
			perChunk[e.Chunk] = cs
		}
		switch e.Kind {
		case runlog.KindAdvance:
			n := e.Ticks
			if n == 0 {
				n = 1
			}
			cs.ticksAdvanced += n
		case runlog.KindAction:
			cs.actions++
		case runlog.KindCheck:
			if e.OK != nil && *e.OK {
				cs.checksOK++
			} else {
				cs.checksFailed++
			}
		case runlog.KindPause:
			cs.pauses++
		case runlog.KindCleanup:
			cs.cleanups++
		case runlog.KindTransport:
			cs.transportErrs++
		}
		return nil
	})
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(perChunk))
	for id := range perChunk {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		cs := perChunk[id]
		fmt.Printf("chunk %d: %d ticks advanced, %d actions, %d/%d checks passed, %d pauses, %d cleanups",
			id, cs.ticksAdvanced, cs.actions, cs.checksOK, cs.checksOK+cs.checksFailed, cs.pauses, cs.cleanups)
		if cs.transportErrs > 0 {
			fmt.Printf(", %d transport errors", cs.transportErrs)
		}
		fmt.Println()
	}
	fmt.Printf("%d entries in %s\n", total, path)
	return nil
}
