package gridseis

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"
)

// GridSystem 管理整个电网频率监测系统的生命周期
type GridSystem struct {
	cfg *Config

	// 组件
	servo    *ServoClient
	source   WindowSource
	audio    *AudioSource
	adc      *SerialADC
	replay   *WavReplaySource
	recorder *WavRecorder
	debugger EpochDebugger
	loop     *MeasurementLoop

	// 状态
	replayFile string
	recordFile string
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewGridSystem 创建系统实例
func NewGridSystem(cfg *Config) *GridSystem {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &GridSystem{cfg: cfg}
}

// SetReplayFile 设置回放文件 (设置后进入回放模式)
func (s *GridSystem) SetReplayFile(filename string) {
	s.replayFile = filename
}

// EnableRecording 把采集到的原始采样流旁路录制到 WAV
func (s *GridSystem) EnableRecording(filename string) {
	s.recordFile = filename
}

// Start 启动系统
func (s *GridSystem) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// 1. 参考表与解调器 (一次性构建，此后只读)
	ref := NewReferenceTable(s.cfg.Signal.NominalFreq, s.cfg.Signal.SampleRate, s.cfg.Signal.WindowLen)
	demod := NewDemodulator(ref)

	// 2. 采集端
	if err := s.initSource(); err != nil {
		return err
	}

	// 3. 旁路录制
	if s.recordFile != "" && s.replayFile == "" {
		rec, err := NewWavRecorder(s.recordFile, int(s.cfg.Signal.SampleRate))
		if err != nil {
			return fmt.Errorf("failed to create wav file: %v", err)
		}
		s.recorder = rec
		s.source = &recordingSource{inner: s.source, rec: rec}
		fmt.Printf("Recording sample stream to %s\n", s.recordFile)
	}

	// 4. 舵机 (连不上只警告，没有舵机也照样测量)
	if s.cfg.Servo.Enabled {
		servo := NewServoClient(s.cfg.Servo.Port, s.cfg.Servo.Baud, s.cfg.Servo.Channel,
			s.cfg.Servo.MinPulseUs, s.cfg.Servo.MaxPulseUs)
		fmt.Printf("Connecting to servo on %s...\n", s.cfg.Servo.Port)
		if err := servo.Open(); err != nil {
			log.Printf("Warning: Could not open servo port: %v\n", err)
		} else {
			s.servo = servo
			s.runBoundsDemo()
		}
	}

	// 5. 调试器
	s.debugger = EpochDebugger(NoOpDebugger{})
	if path := s.cfg.Telemetry.DebugCSV; path != "" {
		d, err := NewCsvEpochDebugger(path)
		if err != nil {
			return fmt.Errorf("failed to create debug csv: %v", err)
		}
		s.debugger = d
	}

	// 6. 组装并启动测量循环
	tracker := NewPhaseTracker(s.cfg.Signal.NominalFreq, s.source.FullScale())
	var servo AngleSetter
	if s.servo != nil {
		servo = s.servo
	}
	s.loop = NewMeasurementLoop(s.cfg, s.source, demod, tracker, servo, NewRecorder(os.Stdout), s.debugger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	fmt.Printf("Measuring: %.2f - %.2f Hz, window %d @ %g Hz\n",
		s.cfg.Signal.NominalFreq-s.cfg.Signal.FreqRange,
		s.cfg.Signal.NominalFreq+s.cfg.Signal.FreqRange,
		s.cfg.Signal.WindowLen, s.cfg.Signal.SampleRate)

	go func() {
		defer close(s.done)
		s.loop.Run(ctx)
	}()

	return nil
}

// initSource 按模式初始化采集端
func (s *GridSystem) initSource() error {
	if s.replayFile != "" {
		replay, err := NewWavReplaySource(s.replayFile, s.cfg.Signal.WindowLen, int(s.cfg.Signal.SampleRate))
		if err != nil {
			return fmt.Errorf("failed to open replay file: %v", err)
		}
		s.replay = replay
		s.source = replay
		fmt.Printf("Mode: REPLAY (%s)\n", s.replayFile)
		return nil
	}

	switch s.cfg.Acquisition.Mode {
	case "adc":
		adc, err := OpenSerialADC(s.cfg.Acquisition.ADCPort, s.cfg.Acquisition.ADCBaud)
		if err != nil {
			return fmt.Errorf("failed to open adc port: %v", err)
		}
		s.adc = adc
		s.source = NewPolledADC(adc, s.cfg.Signal.WindowLen, s.cfg.Signal.SampleRate,
			s.cfg.Acquisition.ADCMidScale, s.cfg.Acquisition.ReadRetries)
		fmt.Printf("Mode: ADC (%s)\n", s.cfg.Acquisition.ADCPort)
	default:
		audio, err := NewAudioSource(s.cfg.Acquisition.CaptureRate, s.cfg.Signal.SampleRate,
			s.cfg.Signal.WindowLen, s.cfg.Acquisition.AudioDevice)
		if err != nil {
			return fmt.Errorf("failed to init audio capture: %v", err)
		}
		if err := audio.Start(); err != nil {
			audio.Stop()
			return fmt.Errorf("failed to start audio capture: %v", err)
		}
		s.audio = audio
		s.source = audio
		fmt.Println("Mode: LIVE (audio line-in)")
	}
	return nil
}

// WaitDone 阻塞到测量循环自行结束 (回放模式跑完数据)
func (s *GridSystem) WaitDone() {
	if s.done != nil {
		<-s.done
	}
}

// Stop 停止系统并释放资源
func (s *GridSystem) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.audio != nil {
		s.audio.Stop()
	}
	if s.adc != nil {
		s.adc.Close()
	}
	if s.replay != nil {
		s.replay.Close()
	}
	if s.recorder != nil {
		fmt.Println("\nSaving recording...")
		if err := s.recorder.Close(); err != nil {
			log.Printf("Error saving recording: %v", err)
		} else {
			fmt.Println("Recording saved.")
		}
	}
	if s.debugger != nil {
		s.debugger.Close()
	}
	if s.servo != nil {
		// 指针回中再断开
		_ = s.servo.SetAngle(90)
		s.servo.Close()
	}
}

// runBoundsDemo 开机演示: 依次展示表盘的频率边界
// 最低边界用双弹跳标识 (区别于最高边界)，然后是中心和最高边界
// 角度直接由映射函数算出，观察者可以据此核对表盘刻度
func (s *GridSystem) runBoundsDemo() {
	nominal := s.cfg.Signal.NominalFreq
	rangeHz := s.cfg.Signal.FreqRange
	freqMin := nominal - rangeHz
	freqMax := nominal + rangeHz

	minAngle := FreqToAngle(freqMin, nominal, rangeHz)    // 135°
	centerAngle := FreqToAngle(nominal, nominal, rangeHz) // 90°
	maxAngle := FreqToAngle(freqMax, nominal, rangeHz)    // 45°
	bounceAngle := minAngle - 15

	hold := time.Duration(s.cfg.Servo.DemoHoldMs) * time.Millisecond
	bounce := time.Duration(s.cfg.Servo.DemoBounceMs) * time.Millisecond
	centerHold := time.Duration(s.cfg.Servo.DemoCenterMs) * time.Millisecond
	maxHold := time.Duration(s.cfg.Servo.DemoMaxMs) * time.Millisecond

	fmt.Println("========== FREQUENCY BOUNDS ==========")
	fmt.Printf("  MIN: %.3f Hz (servo %.0f°)\n", freqMin, minAngle)
	fmt.Printf("  NOM: %.3f Hz (servo %.0f°)\n", nominal, centerAngle)
	fmt.Printf("  MAX: %.3f Hz (servo %.0f°)\n", freqMax, maxAngle)
	fmt.Println("======================================")

	// 最低边界 + 双弹跳
	fmt.Printf("Showing MIN: %.3f Hz (double bounce)\n", freqMin)
	s.servo.SetAngle(minAngle)
	time.Sleep(hold)
	s.servo.SetAngle(bounceAngle)
	time.Sleep(bounce)
	s.servo.SetAngle(minAngle)
	time.Sleep(bounce)
	s.servo.SetAngle(bounceAngle)
	time.Sleep(bounce)
	s.servo.SetAngle(minAngle)
	time.Sleep(hold)

	// 中心 (标称频率)
	fmt.Printf("Showing NOM: %.3f Hz\n", nominal)
	s.servo.SetAngle(centerAngle)
	time.Sleep(centerHold)

	// 最高边界
	fmt.Printf("Showing MAX: %.3f Hz\n", freqMax)
	s.servo.SetAngle(maxAngle)
	time.Sleep(maxHold)

	// 回中
	s.servo.SetAngle(centerAngle)
	time.Sleep(time.Second)
}

// recordingSource 在采集路径上加一个录制旁路
type recordingSource struct {
	inner WindowSource
	rec   *WavRecorder
}

func (r *recordingSource) ReadWindow() ([]float64, error) {
	window, err := r.inner.ReadWindow()
	if err != nil {
		return nil, err
	}
	if err := r.rec.WriteWindow(window); err != nil {
		log.Printf("recording: %v", err)
	}
	return window, nil
}

func (r *recordingSource) FullScale() float64 {
	return r.inner.FullScale()
}
