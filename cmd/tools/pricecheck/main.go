// Command pricecheck validates pricing matrix fixtures before they are loaded
// into the catalog. It reads a JSON file of matrix entries grouped by product
// and reports overlapping ranges, which would make dimension pricing ambiguous.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/catalog"
	"github.com/decorluxe/backend-blinds/internal/pricing"
)

func main() {
	path := flag.String("file", "", "path to a JSON array of pricing matrix entries")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "usage: pricecheck -file entries.json")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *path, err)
		os.Exit(1)
	}

	var entries []catalog.MatrixEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", *path, err)
		os.Exit(1)
	}

	byProduct := map[uuid.UUID][]catalog.MatrixEntry{}
	for _, e := range entries {
		byProduct[e.ProductID] = append(byProduct[e.ProductID], e)
	}

	failed := false
	for productID, group := range byProduct {
		if err := pricing.ValidateMatrix(group); err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "product %s: %v\n", productID, err)
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Printf("ok: %d entries across %d products\n", len(entries), len(byProduct))
}
