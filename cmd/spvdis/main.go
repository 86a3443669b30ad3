// spvdis - SPIR-V disassembler
// Prints .spvasm style text for a binary module, optionally checking it
// against the generator's structural invariants first.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/parallax/spirv"
)

var verify = flag.Bool("verify", false, "check structural invariants before printing")

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: spvdis [-verify] <file.spv>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verify {
		words, err := spirv.BytesToWords(data)
		if err == nil {
			err = spirv.Verify(words)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	text, err := spirv.DisassembleBytes(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(text)
}
