package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	gridseis "github.com/JamesTwallin/GridSeisMonitor"
)

func main() {
	// 1. 解析命令行参数
	configPath := flag.String("config", "", "YAML config file (built-in defaults when empty)")
	replayFile := flag.String("file", "", "Replay raw sample stream from a wav file")
	recordFile := flag.String("record", "", "Record acquired sample stream to a wav file")
	mode := flag.String("mode", "", "Acquisition mode override: live or adc")
	flag.Parse()

	// 2. 加载配置
	var cfg *gridseis.Config
	if *configPath != "" {
		var err error
		cfg, err = gridseis.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Config load failed: %v", err)
		}
	} else {
		cfg = gridseis.DefaultConfig()
	}
	if *mode != "" {
		cfg.Acquisition.Mode = *mode
	}

	// 3. 初始化系统
	system := gridseis.NewGridSystem(cfg)
	if *replayFile != "" {
		system.SetReplayFile(*replayFile)
	}
	if *recordFile != "" {
		system.EnableRecording(*recordFile)
	}

	// 4. 启动系统
	if err := system.Start(); err != nil {
		log.Fatalf("System start failed: %v", err)
	}
	defer system.Stop()

	// 5. 回放模式跑完数据自行退出，实时模式等退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		system.WaitDone()
		close(done)
	}()

	select {
	case <-sigChan:
		fmt.Println("\nShutting down...")
	case <-done:
	}
}
