package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aihub/ragindex/app/bootstrap"
	"github.com/aihub/ragindex/internal/knowledge"
	"github.com/aihub/ragindex/internal/logger"
	"github.com/aihub/ragindex/internal/services"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	source := flag.String("source", "", "local path or minio://bucket/key of the source document")
	dump := flag.String("dump", "", "optional path to write the indexed chunks as JSON lines")
	flag.Parse()

	if *source == "" {
		flag.Usage()
		os.Exit(2)
	}

	app, err := bootstrap.Init(*configFile)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.Invoke(func(svc *services.KnowledgeService) error {
		result, err := svc.Reindex(ctx, *source)
		if err != nil {
			return err
		}
		fmt.Printf("Total embeddings stored: %d\n", result.VectorCount)
		fmt.Printf("Total sentences stored: %d\n", result.TextCount)
		if *dump != "" {
			return dumpChunks(*dump, result.Chunks)
		}
		return nil
	})
	stop()
	app.Shutdown()
	if err != nil {
		logger.Error("ingestion failed", zap.Error(err))
		os.Exit(1)
	}
}

// dumpChunks 每行一个切片，包含 id、文本、序号与向量
func dumpChunks(path string, chunks []knowledge.Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			return fmt.Errorf("failed to write chunk %s: %w", chunk.ID, err)
		}
	}
	return w.Flush()
}
