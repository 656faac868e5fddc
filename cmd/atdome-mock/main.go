package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/tribeiro/rubin-ts-atdome/pkg/atdome/mockcontroller"
)

func main() {
	port := flag.Int("port", 9999, "port to listen on")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("ATDome mock controller")

	cfg := mockcontroller.DefaultConfig()
	cfg.ListenAddr = fmt.Sprintf("127.0.0.1:%d", *port)

	mc := mockcontroller.New(cfg, log.WithField("device", "mockcontroller"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mc.Run(ctx); err != nil {
		log.Fatalf("mock controller stopped: %v", err)
	}
	log.Info("mock controller stopped")
}
