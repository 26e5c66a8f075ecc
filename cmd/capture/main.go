// capture 从一块或多块监测板的串口抓取频率记录，落盘成 JSONL
//
// 板子每秒输出一行 {"t":...,"freq":...,"smoothed":...,"signal":...}，
// 这里补上板名和墙钟时间后逐行追加到 grid_log_<name>.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

func capture(port, name, outputDir string, baud int, wg *sync.WaitGroup) {
	defer wg.Done()

	conn, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		log.Printf("[%s] Serial error: %v", name, err)
		return
	}
	defer conn.Close()

	outPath := filepath.Join(outputDir, fmt.Sprintf("grid_log_%s.jsonl", name))
	f, err := os.OpenFile(outPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[%s] Output error: %v", name, err)
		return
	}
	defer f.Close()

	fmt.Printf("[%s] Connected to %s\n", name, port)
	fmt.Printf("[%s] Logging to %s\n", name, outPath)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// 只认完整的 JSON 行，串口垃圾和启动日志直接跳过
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}

		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		record["board"] = name
		record["wall_time"] = time.Now().Format(time.RFC3339Nano)

		out, err := json.Marshal(record)
		if err != nil {
			continue
		}
		if _, err := f.Write(append(out, '\n')); err != nil {
			log.Printf("[%s] Write error: %v", name, err)
			return
		}

		if freq, ok := record["freq"].(float64); ok {
			sig, _ := record["signal"].(float64)
			fmt.Printf("[%s] %.4f Hz | signal: %.3f\n", name, freq, sig)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[%s] Serial error: %v", name, err)
	}
}

func main() {
	name := flag.String("name", "", "Board name (single port only)")
	output := flag.String("output", ".", "Output directory for log files")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	flag.Parse()

	ports := flag.Args()
	if len(ports) == 0 {
		fmt.Println("Usage: capture [flags] PORT [PORT...]")
		fmt.Println("Example: capture -name esp1 /dev/ttyUSB0")
		flag.PrintDefaults()
		return
	}

	var wg sync.WaitGroup
	for i, port := range ports {
		boardName := fmt.Sprintf("board%d", i+1)
		if *name != "" && len(ports) == 1 {
			boardName = *name
		}
		wg.Add(1)
		go capture(port, boardName, *output, *baud, &wg)
	}

	fmt.Printf("\nCapturing from %d board(s)... Press Ctrl+C to stop.\n\n", len(ports))
	wg.Wait()
}
