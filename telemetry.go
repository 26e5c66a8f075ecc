package gridseis

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Recorder 每个测量周期输出一条自包含的 JSON 行
// 行格式是下游消费者 (capture 工具) 的契约: 字段名和小数位数保持稳定
type Recorder struct {
	w io.Writer
}

// NewRecorder 创建上报器，w 通常是 os.Stdout
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w}
}

// Record 输出一次成功测量
// {"t":<ms>,"freq":<4位小数>,"smoothed":<4位小数>,"signal":<3位小数>}
func (r *Recorder) Record(tMillis int64, freq, smoothed, amplitude float64) {
	fmt.Fprintf(r.w, "{\"t\":%d,\"freq\":%.4f,\"smoothed\":%.4f,\"signal\":%.3f}\n",
		tMillis, freq, smoothed, amplitude)
}

// RecordFailure 输出一次测量失败
func (r *Recorder) RecordFailure(tMillis int64, reason string) {
	fmt.Fprintf(r.w, "{\"t\":%d,\"err\":%q}\n", tMillis, reason)
}

// EpochDebugger 定义周期调试器接口
// 测量循环只依赖这个接口，不依赖具体的文件操作
type EpochDebugger interface {
	Record(i, q, phase, freq, amplitude float64)
	Close()
}

// CsvEpochDebugger 把每个周期的中间量写进 CSV，方便离线分析
type CsvEpochDebugger struct {
	file   *os.File
	writer *bufio.Writer
}

// NewCsvEpochDebugger 创建一个新的 CSV 调试器
func NewCsvEpochDebugger(filename string) (*CsvEpochDebugger, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("I,Q,Phase,Freq,Amplitude\n"); err != nil {
		f.Close()
		return nil, err
	}

	return &CsvEpochDebugger{file: f, writer: w}, nil
}

// Record 记录单个周期
func (d *CsvEpochDebugger) Record(i, q, phase, freq, amplitude float64) {
	fmt.Fprintf(d.writer, "%f,%f,%f,%f,%f\n", i, q, phase, freq, amplitude)
}

// Close 刷新缓冲区并关闭文件
func (d *CsvEpochDebugger) Close() {
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.file != nil {
		d.file.Close()
	}
}

// NoOpDebugger 是空实现，生产环境默认使用
// 避免在测量循环里到处写 nil check
type NoOpDebugger struct{}

func (NoOpDebugger) Record(i, q, phase, freq, amplitude float64) {}
func (NoOpDebugger) Close()                                      {}
