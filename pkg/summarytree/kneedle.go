package summarytree

import "math"

// DefaultKneeSensitivity Kneedle 灵敏度
const DefaultKneeSensitivity = 1.0

// ConvexDecreasingKnee 在凸递减曲线上用 Kneedle 算法定位拐点
//
// x 需严格递增。找不到拐点时返回 false，包括点数不足与直线。
func ConvexDecreasingKnee(x, y []float64, sensitivity float64) (float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, false
	}
	xn, ok := normalize(x)
	if !ok {
		return 0, false
	}
	yn, ok := normalize(y)
	if !ok {
		return 0, false
	}

	diff := make([]float64, n)
	for i := range diff {
		diff[i] = (1 - yn[i]) - xn[i]
	}

	maxima := relativeExtrema(diff, func(a, b float64) bool { return a >= b })
	minima := relativeExtrema(diff, func(a, b float64) bool { return a <= b })
	if len(maxima) == 0 {
		return 0, false
	}

	step := 0.0
	for i := 1; i < n; i++ {
		step += math.Abs(xn[i] - xn[i-1])
	}
	step /= float64(n - 1)

	isMinimum := make(map[int]bool, len(minima))
	for _, i := range minima {
		isMinimum[i] = true
	}
	thresholds := make(map[int]float64, len(maxima))
	for _, i := range maxima {
		thresholds[i] = diff[i] - sensitivity*step
	}

	threshold, thresholdIndex := 0.0, 0
	for i := maxima[0]; i < n-1; i++ {
		if t, ok := thresholds[i]; ok {
			threshold, thresholdIndex = t, i
		}
		if isMinimum[i] {
			threshold = 0
		}
		if diff[i+1] < threshold {
			return x[thresholdIndex], true
		}
	}
	return 0, false
}

// normalize 线性缩放到 [0, 1]，常数序列返回 false
func normalize(v []float64) ([]float64, bool) {
	lo, hi := v[0], v[0]
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if hi == lo {
		return nil, false
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - lo) / (hi - lo)
	}
	return out, true
}

// relativeExtrema 与左右邻居比较，端点与自身比较
func relativeExtrema(v []float64, cmp func(a, b float64) bool) []int {
	var idx []int
	last := len(v) - 1
	for i := range v {
		left, right := v[max(i-1, 0)], v[min(i+1, last)]
		if cmp(v[i], left) && cmp(v[i], right) {
			idx = append(idx, i)
		}
	}
	return idx
}
