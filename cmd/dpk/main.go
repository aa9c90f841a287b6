package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"dpk/internal/config"
	"dpk/internal/logic/keygen"
	"dpk/pkg/logger"
)

var configFile = flag.String("f", "etc/dpk.yaml", "the config file")

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
			code = 2
		}
	}()

	flag.Parse()

	c, err := config.LoadOrDefault(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if err := logger.InitLogger(c.LogConf.ToLogOption()); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// 收到退出信号后取消 ctx，当前批次处理完即停止
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("[dpk] start, workers=%d chunk_size=%d skip_invalid=%v",
		c.BatchConf.Workers, c.BatchConf.ChunkSize, c.BatchConf.SkipInvalid)

	start := time.Now()
	stats, err := keygen.NewGenerator(c.BatchConf).Run(ctx, os.Stdin, os.Stdout)
	if err != nil {
		logger.Errorf("[dpk] derive partition keys failed after %d lines: %v", stats.Lines, err)
		return 1
	}

	logger.Infof("[dpk] done, lines=%d derived=%d invalid=%d cost=%v",
		stats.Lines, stats.Derived, stats.Invalid, time.Since(start))
	return 0
}
