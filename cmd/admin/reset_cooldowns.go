package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/vietddude/stylelog"

	"github.com/vietddude/regionrouter/internal/infra/storage/file"
)

func main() {
	path := flag.String("file", "bedrock_endpoints.conf", "endpoint file to rewrite")
	regions := flag.String("regions", "", "comma separated regions to reset (default all)")
	flag.Parse()

	stylelog.InitDefault()

	var selected []string
	for _, r := range strings.Split(*regions, ",") {
		if r = strings.TrimSpace(r); r != "" {
			selected = append(selected, r)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := file.NewStateRepo(*path).ResetCooldowns(ctx, selected...)
	if err != nil {
		slog.Error("Failed to reset cool-downs", "file", *path, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Reset %d cool-down(s) in %s\n", n, *path)
}
