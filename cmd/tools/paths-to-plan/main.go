// Command paths-to-plan converts solver path output into the per-agent
// step plan robots execute.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/arena.grid/internal/plan"
)

func main() {
	in := flag.String("in", "data/paths.txt", "Solver paths file ('-' for stdin)")
	out := flag.String("out", "data/plan.txt", "Plan file to write ('-' for stdout)")
	flag.Parse()

	if err := run(*in, *out); err != nil {
		log.Fatal(err)
	}
}

func run(inPath, outPath string) error {
	var r io.Reader = os.Stdin
	if inPath != "-" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var w io.Writer = os.Stdout
	var outFile *os.File
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		outFile = f
		w = f
	}
	bw := bufio.NewWriter(w)

	table, perr := plan.Translate(r, bw)
	if err := bw.Flush(); err != nil {
		return err
	}
	if outFile != nil {
		if err := outFile.Close(); err != nil {
			return err
		}
	}
	for _, ae := range plan.AgentErrors(perr) {
		log.Printf("skipped %v", ae)
	}
	if len(table) == 0 {
		if perr != nil {
			return perr
		}
		return fmt.Errorf("%s: no agent paths", inPath)
	}
	log.Printf("wrote %d agent plans", len(table))
	return nil
}
