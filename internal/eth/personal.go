// Package eth wraps go-ethereum's personal-message (EIP-191) signature
// scheme: sign and recover over keccak256("\x19Ethereum Signed Message:\n" +
// len(msg) + msg).
package eth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const sigLen = 65

// PersonalRecover returns the address that signed message with the given
// hex-encoded 65-byte signature. The recovery id may be in either the 0/1 or
// the legacy 27/28 form.
func PersonalRecover(message []byte, sigHex string) (common.Address, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(sigHex), "0x")
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != sigLen {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", sigLen, len(sig))
	}

	// crypto.SigToPub expects V in {0,1}.
	v := make([]byte, sigLen)
	copy(v, sig)
	if v[sigLen-1] >= 27 {
		v[sigLen-1] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), v)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// PersonalSign signs message with key and returns the hex-encoded signature
// in the 27/28 form wallets produce. Used by tests and tooling.
func PersonalSign(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[sigLen-1] += 27
	return "0x" + hex.EncodeToString(sig), nil
}
