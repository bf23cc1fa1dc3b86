package reactor

const (
	// sizeOfCacheLine is the size of a CPU cache line. 64 bytes is
	// standard for x86-64; 128 bytes is standard for Apple Silicon and
	// other ARM64. We use 128 to satisfy the largest common alignment
	// requirement.
	sizeOfCacheLine = 128
)
