package gridseis

// FreqToAngle 把频率估计线性映射为表盘角度 [0°, 180°]
// 标称频率正好 90°，高于标称偏向 0°，低于标称偏向 180°:
//
//	nominal - rangeHz -> 135°
//	nominal           -> 90°
//	nominal + rangeHz -> 45°
//
// 无滞回、无平滑、无状态，越界截断到 [0, 180]
func FreqToAngle(freq, nominalFreq, rangeHz float64) float64 {
	deviation := freq - nominalFreq
	angle := 90.0 - (deviation/rangeHz)*45.0
	if angle < 0 {
		angle = 0
	}
	if angle > 180 {
		angle = 180
	}
	return angle
}
