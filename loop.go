package gridseis

import (
	"context"
	"errors"
	"io"
	"log"
	"time"
)

// AngleSetter 是执行端的最小接口，舵机客户端实现它
type AngleSetter interface {
	SetAngle(angle float64) error
}

// MeasurementLoop 编排一个测量周期:
// 采窗 -> 解调 -> 相位跟踪 -> 角度映射 -> 舵机 + 上报
type MeasurementLoop struct {
	cfg      *Config
	source   WindowSource
	demod    *Demodulator
	tracker  *PhaseTracker
	servo    AngleSetter // 可以为 nil (无舵机运行)
	recorder *Recorder
	debugger EpochDebugger

	smoothed float64 // 仅用于上报的平滑频率，以标称频率起步
	start    time.Time
}

// NewMeasurementLoop 组装测量循环
func NewMeasurementLoop(cfg *Config, source WindowSource, demod *Demodulator,
	tracker *PhaseTracker, servo AngleSetter, recorder *Recorder, debugger EpochDebugger) *MeasurementLoop {

	if debugger == nil {
		debugger = NoOpDebugger{}
	}
	return &MeasurementLoop{
		cfg:      cfg,
		source:   source,
		demod:    demod,
		tracker:  tracker,
		servo:    servo,
		recorder: recorder,
		debugger: debugger,
		smoothed: cfg.Signal.NominalFreq,
	}
}

// Run 持续测量，直到 ctx 取消或回放数据耗尽
// 相邻周期之间用固定间隔分隔 (区别于窗口内的采样间隔)
func (l *MeasurementLoop) Run(ctx context.Context) {
	l.start = time.Now()
	delay := time.Duration(l.cfg.Signal.EpochDelayMs) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !l.runEpoch() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runEpoch 执行一个完整测量周期，返回 false 表示数据流结束
// 周期内的任何失败都在本周期内了结: 上报失败记录，不更新相位基线
func (l *MeasurementLoop) runEpoch() bool {
	window, err := l.source.ReadWindow()
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Println("End of sample stream.")
			return false
		}
		log.Printf("acquisition failed: %v", err)
		l.recorder.RecordFailure(l.elapsedMillis(), "acquisition")
		return true
	}

	if l.cfg.Signal.RemoveDC {
		removeMean(window)
	}

	phasor, err := l.demod.Demodulate(window)
	if err != nil {
		// 长度不匹配属于配置错误，启动校验本应拦下它
		log.Printf("demodulation failed: %v", err)
		l.recorder.RecordFailure(l.elapsedMillis(), "demodulation")
		return true
	}

	// 幅度门限在更新相位基线之前判定: 弱信号的相位是噪声，不能污染基线
	amplitude := phasor.Magnitude() / l.source.FullScale()
	if gate := l.cfg.Signal.MinAmplitude; gate > 0 && amplitude < gate {
		l.recorder.RecordFailure(l.elapsedMillis(), "weak-signal")
		return true
	}

	m := l.tracker.Update(phasor)

	// 平滑只作用于上报值，舵机跟随瞬时频率
	alpha := l.cfg.Signal.Alpha
	l.smoothed = alpha*m.Freq + (1-alpha)*l.smoothed

	angle := FreqToAngle(m.Freq, l.cfg.Signal.NominalFreq, l.cfg.Signal.FreqRange)
	if l.servo != nil {
		if err := l.servo.SetAngle(angle); err != nil {
			log.Printf("servo: %v", err)
		}
	}

	l.debugger.Record(phasor.I, phasor.Q, m.Phase, m.Freq, m.Amplitude)
	l.recorder.Record(l.elapsedMillis(), m.Freq, l.smoothed, m.Amplitude)
	return true
}

// elapsedMillis 返回循环启动以来的单调毫秒数 (上报时间戳)
func (l *MeasurementLoop) elapsedMillis() int64 {
	return time.Since(l.start).Milliseconds()
}

// removeMean 去除窗口的直流分量
func removeMean(window []float64) {
	var sum float64
	for _, s := range window {
		sum += s
	}
	mean := sum / float64(len(window))
	for i := range window {
		window[i] -= mean
	}
}
