package gridseis

import (
	"bufio"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// ErrShortWindow 表示一个采样窗口没有集满 (采集失败超出重试预算)
// 短窗口绝不交给解调器，整个周期按测量失败处理
var ErrShortWindow = errors.New("sample window incomplete")

// WindowSource 每个测量周期提供一个去直流的采样窗口
type WindowSource interface {
	// ReadWindow 返回固定长度、按时间顺序排列的采样窗口
	ReadWindow() ([]float64, error)
	// FullScale 返回满量程幅度参考，用于幅度归一化
	FullScale() float64
}

// SampleReader 是采集端的最小接口: 读取一个原始 ADC 码值
type SampleReader interface {
	ReadSample() (int, error)
}

// PolledADC 以固定间隔轮询 SampleReader 集满一个窗口
// 用单调时钟对齐采样槽位 (next += interval)，避免 sleep 累积漂移
type PolledADC struct {
	reader    SampleReader
	windowLen int
	interval  time.Duration
	midScale  float64
	retries   int
}

// NewPolledADC 创建定时轮询采集器
func NewPolledADC(reader SampleReader, windowLen int, sampleRate, midScale float64, retries int) *PolledADC {
	return &PolledADC{
		reader:    reader,
		windowLen: windowLen,
		interval:  time.Duration(float64(time.Second) / sampleRate),
		midScale:  midScale,
		retries:   retries,
	}
}

// FullScale 满量程参考就是半量程码值
func (p *PolledADC) FullScale() float64 {
	return p.midScale
}

// ReadWindow 采集一个完整窗口，码值减去半量程后得到去直流采样
// 单个读取失败时在本槽位内重试；重试用尽则放弃整个窗口
func (p *PolledADC) ReadWindow() ([]float64, error) {
	window := make([]float64, 0, p.windowLen)
	next := time.Now()

	for len(window) < p.windowLen {
		now := time.Now()
		if now.Before(next) {
			// 离下一个采样槽还早: 粗等用短睡让出调度，
			// 临近槽位时换成 Gosched 自旋以保持间隔精度
			if wait := next.Sub(now); wait > 200*time.Microsecond {
				time.Sleep(wait / 2)
			} else {
				runtime.Gosched()
			}
			continue
		}

		raw, err := p.reader.ReadSample()
		for attempt := 0; err != nil && attempt < p.retries; attempt++ {
			raw, err = p.reader.ReadSample()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read failed at sample %d: %v", ErrShortWindow, len(window), err)
		}

		window = append(window, float64(raw)-p.midScale)
		next = next.Add(p.interval)
	}

	return window, nil
}

// SerialADC 从串口 ADC 板读取码值，每行一个 ASCII 整数 (0-4095)
type SerialADC struct {
	conn    SerialPort
	scanner *bufio.Scanner
}

// OpenSerialADC 打开串口并包装成 SampleReader
func OpenSerialADC(port string, baud int) (*SerialADC, error) {
	s, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialADC(s), nil
}

// NewSerialADC 用一个已打开的连接创建读取器 (测试时传入 Mock)
func NewSerialADC(conn SerialPort) *SerialADC {
	return &SerialADC{
		conn:    conn,
		scanner: bufio.NewScanner(conn),
	}
}

// ReadSample 读取一行并解析成码值
func (a *SerialADC) ReadSample() (int, error) {
	if !a.scanner.Scan() {
		if err := a.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("serial adc: stream closed")
	}

	line := strings.TrimSpace(a.scanner.Text())
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("serial adc: bad sample %q", line)
	}
	return v, nil
}

// Close 关闭串口连接
func (a *SerialADC) Close() error {
	return a.conn.Close()
}
