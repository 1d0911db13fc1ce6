package modelscope

// Round64 rounds x to the nearest multiple of 64, halves rounding down.
func Round64(x int) int {
	return ((x + 31) / 64) * 64
}

// AdaptSize scales (w, h) so the longer side equals longEdge, keeping the
// aspect ratio with integer truncation, then rounds both sides with Round64.
func AdaptSize(w, h, longEdge int) (int, int) {
	var newW, newH int
	if w >= h {
		newW = longEdge
		newH = h * longEdge / w
	} else {
		newH = longEdge
		newW = w * longEdge / h
	}
	return Round64(newW), Round64(newH)
}
