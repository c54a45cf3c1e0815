package session

// findFrameSync returns the offset of the first MPEG audio frame sync word
// in data, or -1. A sync word is 0xFF followed by a byte with its top three
// bits set.
func findFrameSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if isFrameSync(data[i], data[i+1]) {
			return i
		}
	}
	return -1
}

func isFrameSync(a, b byte) bool {
	return a == 0xFF && b&0xE0 == 0xE0
}
