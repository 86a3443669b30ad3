// Command parallaxc compiles parallax IR files to SPIR-V compute kernels.
//
// Usage:
//
//	parallaxc compile [flags] <ir-file>...
//	parallaxc dis <file.spv>
//	parallaxc verify <file.spv>
//	parallaxc fingerprint <ir-file>...
//	parallaxc abi <ir-file>
//	parallaxc version
//
// Examples:
//
//	parallaxc compile scale.yaml                 # writes scale.spv
//	parallaxc compile -o out/ --jobs 8 k/*.yaml  # parallel batch
//	parallaxc compile --strict --spirv 1.5 k.msgpack
//	parallaxc dis scale.spv
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
		os.Exit(1)
	}
}
