package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// GenerateOTP returns a uniformly random decimal code of exactly digits
// digits with no leading zero, drawn from crypto/rand.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("otp: digits must be between 1 and 18, got %d", digits)
	}

	low := int64(1)
	for i := 1; i < digits; i++ {
		low *= 10
	}
	high := low*10 - 1

	n, err := rand.Int(rand.Reader, big.NewInt(high-low+1))
	if err != nil {
		return "", fmt.Errorf("otp: read random: %w", err)
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}
