package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/ragindex/app/bootstrap"
	"github.com/aihub/ragindex/internal/logger"
	"github.com/aihub/ragindex/internal/services"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	question := flag.String("question", "", "question to search for")
	topK := flag.Int("top_k", 0, "number of sentences to retrieve, 0 uses the configured default")
	answer := flag.Bool("answer", false, "generate an answer from the retrieved sentences")
	timeout := flag.Duration("timeout", time.Minute, "overall query timeout")
	flag.Parse()

	if *question == "" {
		flag.Usage()
		os.Exit(2)
	}

	app, err := bootstrap.Init(*configFile)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = app.Invoke(func(svc *services.KnowledgeService) error {
		if *answer {
			res, err := svc.Ask(ctx, *question, *topK)
			if err != nil {
				return err
			}
			fmt.Println(res.Answer)
			for i, src := range res.Sources {
				fmt.Printf("[%d] %.4f %s\n", i+1, src.Distance, src.Text)
			}
			return nil
		}

		results, err := svc.Search(ctx, *question, *topK)
		if err != nil {
			return err
		}
		for i, r := range results {
			fmt.Printf("[%d] %.4f %s\n", i+1, r.Distance, r.Text)
		}
		return nil
	})
	cancel()
	app.Shutdown()
	if err != nil {
		logger.Error("query failed", zap.Error(err))
		os.Exit(1)
	}
}
