package service

import (
	"crypto/rand"
	"math/big"
)

// Letters and digits that cannot be confused when read off a projector.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxJoinCodeAttempts = 10

func randomJoinCode(length int) (string, error) {
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
