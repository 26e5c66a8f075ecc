package gridseis

import (
	"errors"
	"math"
	"testing"

	"github.com/mjibson/go-dsp/fft"
)

const (
	testNominalFreq = 50.0
	testSampleRate  = 1000.0
	testWindowLen   = 1000
)

// 生成正弦波辅助函数
// startSample 让相邻窗口保持相位连续 (模拟连续采样流)
func generateSineWindow(freq, amp float64, startSample, length int) []float64 {
	w := make([]float64, length)
	for i := range w {
		t := float64(startSample+i) / testSampleRate
		w[i] = amp * math.Sin(2*math.Pi*freq*t)
	}
	return w
}

func newTestDemodulator() *Demodulator {
	ref := NewReferenceTable(testNominalFreq, testSampleRate, testWindowLen)
	return NewDemodulator(ref)
}

func TestReferenceTable(t *testing.T) {
	ref := NewReferenceTable(testNominalFreq, testSampleRate, testWindowLen)

	if ref.Length() != testWindowLen {
		t.Fatalf("Expected length %d, got %d", testWindowLen, ref.Length())
	}

	// 第一个点: phase = 0
	if ref.Sin[0] != 0 || ref.Cos[0] != 1 {
		t.Errorf("Expected (sin, cos) = (0, 1) at index 0, got (%v, %v)", ref.Sin[0], ref.Cos[0])
	}

	// 50Hz @ 1kHz: 一个周期 20 个采样点，第 5 个点是四分之一周期
	if math.Abs(ref.Sin[5]-1) > 1e-12 || math.Abs(ref.Cos[5]) > 1e-12 {
		t.Errorf("Expected (sin, cos) = (1, 0) at index 5, got (%v, %v)", ref.Sin[5], ref.Cos[5])
	}

	for i := 0; i < ref.Length(); i++ {
		if ref.Sin[i] < -1 || ref.Sin[i] > 1 || ref.Cos[i] < -1 || ref.Cos[i] > 1 {
			t.Fatalf("Reference value out of [-1, 1] at index %d", i)
		}
	}
}

func TestDemodulate_ZeroWindow(t *testing.T) {
	d := newTestDemodulator()

	// 全零窗口: I = Q = 0，幅度恰好为 0，相位按 atan2(0,0)=0 约定，不崩溃
	p, err := d.Demodulate(make([]float64, testWindowLen))
	if err != nil {
		t.Fatalf("Demodulate failed: %v", err)
	}
	if p.Magnitude() != 0 {
		t.Errorf("Expected amplitude exactly 0, got %v", p.Magnitude())
	}
	if p.Phase() != 0 {
		t.Errorf("Expected phase 0 by convention, got %v", p.Phase())
	}
}

func TestDemodulate_LengthMismatch(t *testing.T) {
	d := newTestDemodulator()

	_, err := d.Demodulate(make([]float64, testWindowLen-1))
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("Expected ErrLengthMismatch, got %v", err)
	}
}

func TestDemodulate_NominalSine(t *testing.T) {
	d := newTestDemodulator()

	// 标称频率、零相位、峰值 1.0 的纯正弦:
	// I ≈ 0, Q ≈ 0.5 (相关积分给出峰值的一半)
	window := generateSineWindow(testNominalFreq, 1.0, 0, testWindowLen)
	p, err := d.Demodulate(window)
	if err != nil {
		t.Fatalf("Demodulate failed: %v", err)
	}

	if math.Abs(p.I) > 1e-9 {
		t.Errorf("Expected I ≈ 0, got %v", p.I)
	}
	if math.Abs(p.Q-0.5) > 1e-9 {
		t.Errorf("Expected Q ≈ 0.5, got %v", p.Q)
	}
	if math.Abs(p.Magnitude()-0.5) > 1e-9 {
		t.Errorf("Expected magnitude ≈ 0.5 (half the peak), got %v", p.Magnitude())
	}
}

// 单点相关与完整 FFT 在标称频率 bin 上必须一致
// X[k] = Σ s[n]·e^(-j2πkn/N) = N·(I - jQ)
func TestDemodulate_MatchesFFTBin(t *testing.T) {
	d := newTestDemodulator()

	// 带相位偏移和直流的混合信号
	window := make([]float64, testWindowLen)
	for i := range window {
		tm := float64(i) / testSampleRate
		window[i] = 0.8*math.Sin(2*math.Pi*testNominalFreq*tm+0.7) +
			0.2*math.Sin(2*math.Pi*150*tm)
	}

	p, err := d.Demodulate(window)
	if err != nil {
		t.Fatalf("Demodulate failed: %v", err)
	}

	spectrum := fft.FFTReal(window)
	bin := spectrum[int(testNominalFreq)] // bin 宽度 = 1000/1000 = 1 Hz

	wantI := real(bin) / testWindowLen
	wantQ := -imag(bin) / testWindowLen

	if math.Abs(p.I-wantI) > 1e-9 || math.Abs(p.Q-wantQ) > 1e-9 {
		t.Errorf("Correlation disagrees with FFT bin: got (%v, %v), want (%v, %v)",
			p.I, p.Q, wantI, wantQ)
	}
}
