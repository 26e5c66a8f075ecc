package gridseis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 结构体用于集中管理监测器的所有可调参数和阈值
type Config struct {
	// --- 信号估计 ---
	// 参考表、解调窗口和频率展开都由这一组参数决定
	Signal struct {
		NominalFreq  float64 `yaml:"nominal_freq"`  // 电网标称频率 (Hz)。英国/欧洲为 50.0
		FreqRange    float64 `yaml:"freq_range"`    // 表盘显示范围 ±Hz。0.15 覆盖正常的电网波动
		SampleRate   float64 `yaml:"sample_rate"`   // 分析采样率 (Hz)
		WindowLen    int     `yaml:"window_len"`    // 每个测量窗口的采样点数。1000 点 @ 1kHz = 1 秒
		Alpha        float64 `yaml:"alpha"`         // 上报值的指数平滑系数 (0.0 - 1.0)。只影响记录，不参与舵机控制
		MinAmplitude float64 `yaml:"min_amplitude"` // 最小置信幅度。低于此值的周期按测量失败处理，设为 0 关闭门限
		RemoveDC     bool    `yaml:"remove_dc"`     // 解调前去除窗口均值。浮空 ADC 的直流偏置并不严格等于半量程
		EpochDelayMs int     `yaml:"epoch_delay_ms"` // 相邻测量之间的间隔 (毫秒)
	}

	// --- 采集 ---
	// live: 声卡线路输入拾取 (默认)
	// adc:  串口 ADC 板定时轮询
	// 回放模式通过命令行 -file 进入，不走这里
	Acquisition struct {
		Mode        string  `yaml:"mode"`          // "live" 或 "adc"
		AudioDevice string  `yaml:"audio_device"`  // 声卡名称子串匹配，留空用系统默认设备
		CaptureRate int     `yaml:"capture_rate"`  // 声卡采集率 (Hz)，必须是分析采样率的整数倍
		ADCPort     string  `yaml:"adc_port"`      // 串口 ADC 板的端口
		ADCBaud     int     `yaml:"adc_baud"`      // 串口波特率
		ADCMidScale float64 `yaml:"adc_mid_scale"` // ADC 半量程码值 (12-bit -> 2048)，兼做满量程幅度参考
		ReadRetries int     `yaml:"read_retries"`  // 单个采样读取失败后的重试次数
	}

	// --- 舵机表盘 ---
	Servo struct {
		Enabled      bool   `yaml:"enabled"`
		Port         string `yaml:"port"`
		Baud         int    `yaml:"baud"`
		Channel      int    `yaml:"channel"`
		MinPulseUs   int    `yaml:"min_pulse_us"` // 0° 对应的脉宽 (µs)
		MaxPulseUs   int    `yaml:"max_pulse_us"` // 180° 对应的脉宽 (µs)
		DemoHoldMs   int    `yaml:"demo_hold_ms"` // 开机演示: 最低边界的停留时长
		DemoBounceMs int    `yaml:"demo_bounce_ms"` // 开机演示: 双弹跳的短停留时长
		DemoCenterMs int    `yaml:"demo_center_ms"` // 开机演示: 中心位置的停留时长
		DemoMaxMs    int    `yaml:"demo_max_ms"`    // 开机演示: 最高边界的停留时长
	}

	// --- 上报 ---
	Telemetry struct {
		DebugCSV string `yaml:"debug_csv"` // 每周期 I/Q/相位调试 CSV 的路径，留空关闭
	}
}

// DefaultConfig 返回一份与原始硬件部署一致的默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	// --- 信号估计 ---
	cfg.Signal.NominalFreq = 50.0
	cfg.Signal.FreqRange = 0.15
	cfg.Signal.SampleRate = 1000.0
	cfg.Signal.WindowLen = 1000
	cfg.Signal.Alpha = 0.3
	cfg.Signal.MinAmplitude = 0.001
	cfg.Signal.RemoveDC = true
	cfg.Signal.EpochDelayMs = 100

	// --- 采集 ---
	cfg.Acquisition.Mode = "live"
	cfg.Acquisition.AudioDevice = ""
	cfg.Acquisition.CaptureRate = 8000
	cfg.Acquisition.ADCPort = "/dev/ttyUSB0"
	cfg.Acquisition.ADCBaud = 115200
	cfg.Acquisition.ADCMidScale = 2048
	cfg.Acquisition.ReadRetries = 2

	// --- 舵机表盘 ---
	cfg.Servo.Enabled = true
	cfg.Servo.Port = "/dev/ttyACM0"
	cfg.Servo.Baud = 9600
	cfg.Servo.Channel = 0
	cfg.Servo.MinPulseUs = 1000
	cfg.Servo.MaxPulseUs = 2000
	cfg.Servo.DemoHoldMs = 3000
	cfg.Servo.DemoBounceMs = 300
	cfg.Servo.DemoCenterMs = 2000
	cfg.Servo.DemoMaxMs = 7000

	return cfg
}

// LoadConfig 在默认配置之上叠加 YAML 配置文件
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 拦截会在运行期引发 LengthMismatch 之类问题的配置错误
// 配置错误要在启动时大声失败，而不是每个周期悄悄出错
func (c *Config) Validate() error {
	if c.Signal.WindowLen <= 0 {
		return fmt.Errorf("window_len must be positive, got %d", c.Signal.WindowLen)
	}
	if c.Signal.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %g", c.Signal.SampleRate)
	}
	if c.Signal.NominalFreq <= 0 || c.Signal.NominalFreq >= c.Signal.SampleRate/2 {
		return fmt.Errorf("nominal_freq %g must be positive and below Nyquist (%g)",
			c.Signal.NominalFreq, c.Signal.SampleRate/2)
	}
	if c.Signal.FreqRange <= 0 {
		return fmt.Errorf("freq_range must be positive, got %g", c.Signal.FreqRange)
	}
	if c.Signal.Alpha < 0 || c.Signal.Alpha > 1 {
		return fmt.Errorf("alpha must be within [0, 1], got %g", c.Signal.Alpha)
	}

	switch c.Acquisition.Mode {
	case "live":
		decim := float64(c.Acquisition.CaptureRate) / c.Signal.SampleRate
		if decim < 1 || decim != float64(int(decim)) {
			return fmt.Errorf("capture_rate %d is not an integer multiple of sample_rate %g",
				c.Acquisition.CaptureRate, c.Signal.SampleRate)
		}
	case "adc":
		if c.Acquisition.ADCMidScale <= 0 {
			return fmt.Errorf("adc_mid_scale must be positive, got %g", c.Acquisition.ADCMidScale)
		}
	default:
		return fmt.Errorf("unknown acquisition mode %q", c.Acquisition.Mode)
	}

	return nil
}
