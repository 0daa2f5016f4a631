// Command searchbox indexes a folder of text, Markdown and HTML files and
// serves BM25 search over it.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/searchbox/cmd/searchbox/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
