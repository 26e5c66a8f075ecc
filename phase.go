package gridseis

import "math"

// Measurement 是一个测量周期的输出
type Measurement struct {
	Freq      float64 // 瞬时频率 (Hz)
	Amplitude float64 // 归一化幅度 (满量程正弦约为 0.5)
	Phase     float64 // 本次窗口的相位 (rad)
}

// PhaseTracker 维护上一次测得的相位，把相邻窗口之间的相位漂移
// 展开成频率估计。状态只有一个写者 (测量循环)，每周期原地更新一次
type PhaseTracker struct {
	nominalFreq float64
	fullScale   float64 // 采集端满量程幅度参考 (如 ADC 半量程码值)
	lastPhase   float64
	hasPrior    bool
}

// NewPhaseTracker 创建跟踪器，初始状态没有相位基线
func NewPhaseTracker(nominalFreq, fullScale float64) *PhaseTracker {
	return &PhaseTracker{
		nominalFreq: nominalFreq,
		fullScale:   fullScale,
	}
}

// Update 消化一个相量，返回频率估计并更新相位基线
func (t *PhaseTracker) Update(p Phasor) Measurement {
	amplitude := p.Magnitude() / t.fullScale
	phase := p.Phase()

	// 第一次测量没有基线，观测不到漂移，按标称频率上报并记下基线
	if !t.hasPrior {
		t.hasPrior = true
		t.lastPhase = phase
		return Measurement{Freq: t.nominalFreq, Amplitude: amplitude, Phase: phase}
	}

	// 相位展开: 把差值折回 (-π, π]
	// 前提是相邻两次测量之间的真实漂移不超过 ±π (频率偏离标称不超过 ±0.5Hz/周期)
	diff := phase - t.lastPhase
	if diff > math.Pi {
		diff -= 2 * math.Pi
	}
	if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	t.lastPhase = phase

	// 频率高于标称时相位随时间滞后 (差值为负)，所以这里是减法
	freq := t.nominalFreq - diff/(2*math.Pi)

	return Measurement{Freq: freq, Amplitude: amplitude, Phase: phase}
}

// Reset 清除相位基线 (例如回放重新开始时)
func (t *PhaseTracker) Reset() {
	t.hasPrior = false
	t.lastPhase = 0
}
