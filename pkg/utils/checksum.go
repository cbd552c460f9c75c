package utils

import "fmt"

// CreateChecksum produces the three digit FIX CheckSum(10) value for
// the given bytes, the sum of every byte modulo 256.
func CreateChecksum(raw []byte) string {
	return fmt.Sprintf("%03d", ChecksumValue(raw))
}

func ChecksumValue(raw []byte) int {
	sum := 0
	for _, b := range raw {
		sum += int(b)
	}
	return sum % 256
}
