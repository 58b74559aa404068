// Command gridtool inspects and converts ESRI ASCII rasters through a
// chunked, swapping grid.
package main

import (
	"fmt"
	"os"
)

func main() {
	t := newTool()
	if err := t.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
