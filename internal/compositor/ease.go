package compositor

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// easeInOutCubic: плавный старт и плавная остановка
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := 2*t - 2
	return 1 + f*f*f/2
}

func clamp01(t float64) float64 {
	return max(0, min(1, t))
}
