package gridseis

import "math"

// ReferenceTable 存储标称频率的正交参考波形 (sin/cos)
// 启动时计算一次，之后只读，可被任意读取方安全共享
type ReferenceTable struct {
	NominalFreq float64
	SampleRate  float64
	Sin         []float64
	Cos         []float64
}

// NewReferenceTable 生成参考表
// 对每个采样点 i: phase = 2π * nominalFreq * (i / sampleRate)
func NewReferenceTable(nominalFreq, sampleRate float64, length int) *ReferenceTable {
	t := &ReferenceTable{
		NominalFreq: nominalFreq,
		SampleRate:  sampleRate,
		Sin:         make([]float64, length),
		Cos:         make([]float64, length),
	}
	for i := 0; i < length; i++ {
		phase := 2 * math.Pi * nominalFreq * float64(i) / sampleRate
		t.Sin[i] = math.Sin(phase)
		t.Cos[i] = math.Cos(phase)
	}
	return t
}

// Length 返回参考表长度 (等于采样窗口长度)
func (t *ReferenceTable) Length() int {
	return len(t.Sin)
}
