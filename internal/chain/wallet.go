package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// PrivateKeyEnv is the variable holding the treasury signing key.
const PrivateKeyEnv = "DEV_WALLET_PRIVATE_KEY"

// LoadPrivateKey reads the signing key from the environment, loading .env first.
func LoadPrivateKey() (solana.PrivateKey, error) {
	_ = godotenv.Load() // best-effort
	v := os.Getenv(PrivateKeyEnv)
	if v == "" {
		return nil, fmt.Errorf("%s not set", PrivateKeyEnv)
	}
	return ParsePrivateKey(v)
}

// ParsePrivateKey accepts a base58 string or a JSON array of 64 bytes
// (the solana-keygen file format).
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var nums []int
		if err := json.Unmarshal([]byte(s), &nums); err != nil {
			return nil, fmt.Errorf("parse key array: %w", err)
		}
		if len(nums) != 64 {
			return nil, fmt.Errorf("key array has %d bytes, want 64", len(nums))
		}
		key := make(solana.PrivateKey, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("key array byte %d out of range", i)
			}
			key[i] = byte(n)
		}
		return key, nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("parse base58 key: %w", err)
	}
	if len(key) != 64 {
		return nil, errors.New("base58 key is not 64 bytes")
	}
	return key, nil
}
