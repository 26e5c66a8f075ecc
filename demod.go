package gridseis

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch 表示采样窗口长度与参考表长度不一致
// 这属于配置错误，正常运行时不应出现
var ErrLengthMismatch = errors.New("sample window length does not match reference table")

// Phasor 表示一个测量窗口的 (I, Q) 相量
type Phasor struct {
	I float64
	Q float64
}

// Magnitude 返回相量幅度 (信号强度的代理值)
func (p Phasor) Magnitude() float64 {
	return math.Sqrt(p.I*p.I + p.Q*p.Q)
}

// Phase 返回相位主值，范围 (-π, π]
// 全零窗口给出 atan2(0, 0) = 0，确定且不会崩溃
func (p Phasor) Phase() float64 {
	return math.Atan2(p.Q, p.I)
}

// Demodulator 把采样窗口与参考表做相关，提取标称频率分量 (I/Q 解调)
// 等价于标称频率上的单点 DFT: 代价 O(N)，刻意不做全频谱变换
type Demodulator struct {
	ref *ReferenceTable
}

// NewDemodulator 创建解调器，独占持有参考表
func NewDemodulator(ref *ReferenceTable) *Demodulator {
	return &Demodulator{ref: ref}
}

// Demodulate 解调一个窗口，返回按窗口长度归一化的相量
// I = Σ sample[k]*cos[k] / N, Q = Σ sample[k]*sin[k] / N
// 纯计算，无副作用；长度不符时返回 ErrLengthMismatch
func (d *Demodulator) Demodulate(samples []float64) (Phasor, error) {
	if len(samples) != d.ref.Length() {
		return Phasor{}, fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(samples), d.ref.Length())
	}

	var iSum, qSum float64
	for k, s := range samples {
		iSum += s * d.ref.Cos[k]
		qSum += s * d.ref.Sin[k]
	}

	n := float64(len(samples))
	return Phasor{I: iSum / n, Q: qSum / n}, nil
}
