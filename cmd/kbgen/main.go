package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ragserver/internal/kbgen"
)

func main() {
	snapshotPath := flag.String("snapshot", "", "Path to scraped statistics snapshot JSON")
	outDir := flag.String("out", "data/knowledge_base", "Output directory for the knowledge base")
	flag.Parse()

	if *snapshotPath == "" {
		fmt.Println("Usage: kbgen --snapshot=data/raw/snapshot.json [--out=data/knowledge_base]")
		os.Exit(1)
	}

	snap, err := kbgen.LoadSnapshot(*snapshotPath)
	if err != nil {
		log.Fatalf("failed to load snapshot: %v", err)
	}

	n, err := kbgen.Generate(snap, *outDir, time.Now())
	if err != nil {
		log.Fatalf("failed to generate knowledge base: %v", err)
	}
	fmt.Printf("Generated %d snippets in %s\n", n, *outDir)
}
