package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kdimtricp/vmood/internal/classifier"
	"github.com/kdimtricp/vmood/internal/config"
	"github.com/kdimtricp/vmood/internal/database"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
)

func main() {
	contentID := flag.String("id", "", "Show stored analyses for this content id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	logger.SetOutput(os.Stderr)

	fmt.Println("🔍 Checking vmood setup")
	fmt.Println("=======================")

	ok := true

	if _, err := classifier.New(&cfg.Classifier, logger); err != nil {
		fmt.Printf("❌ Classifier (%s): %v\n", cfg.Classifier.Backend, err)
		ok = false
	} else {
		fmt.Printf("✅ Classifier: %s\n", cfg.Classifier.Backend)
	}

	e := cfg.Engine
	fmt.Printf("   Engine: stride=%d window=%d divisor=%d suppress_neutral=%v workers=%d\n",
		e.Stride, e.Window, e.Divisor, e.SuppressNeutral, e.Workers)

	if cfg.Pinata.Gateway == "" {
		fmt.Println("⚠️  Pinata gateway not configured (PINATA_GATEWAY)")
		ok = false
	} else {
		client := gateway.NewPinataClient(cfg.Pinata)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		authed, err := client.TestAuthentication(ctx)
		cancel()
		switch {
		case err != nil:
			fmt.Printf("❌ Pinata: %v\n", err)
			ok = false
		case !authed:
			fmt.Println("❌ Pinata: JWT rejected")
			ok = false
		default:
			fmt.Printf("✅ Pinata: authenticated, gateway %s\n", cfg.Pinata.Gateway)
		}
	}

	db, err := database.NewDB(cfg.Database, logger)
	if err != nil {
		fmt.Printf("❌ Database (%s): %v\n", cfg.Database.Type, err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Printf("✅ Database: %s\n", cfg.Database.Type)

	if *contentID != "" {
		analyses, err := database.NewAnalysisRepo(db).ListByContentID(context.Background(), *contentID)
		if err != nil {
			fmt.Printf("❌ History: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n📊 Analyses of %s: %d\n", *contentID, len(analyses))
		for _, a := range analyses {
			fmt.Printf("\n🎬 %s (%s)\n", a.ID, a.CreatedAt.Format(time.RFC3339))
			fmt.Printf("   Labels: %s\n", strings.Join(emotion.Strings(a.Labels), ", "))
			fmt.Printf("   Frames: %d sampled, %d failed, %dms\n", a.FramesSampled, a.FramesFailed, a.DurationMS)
		}
	}

	if !ok {
		os.Exit(1)
	}
}
