package app

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

func newUUID() string {
	return uuid.NewString()
}

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 10
)

// newTicketCode returns a redemption code drawn from an alphabet without
// easily confused characters.
func newTicketCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate ticket code: %w", err)
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
