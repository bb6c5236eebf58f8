// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix marks every account address on the chain.
const AddressPrefix = "PC_"

// addressHexLen is the number of hex characters following the prefix.
const addressHexLen = 40

// publicKeyHexLen is the length of an uncompressed secp256k1 public key
// rendered as hex (0x04 | X | Y).
const publicKeyHexLen = 130

// Signature represents the r and s values of an ECDSA signature in hex.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
}

// =============================================================================

// Hash returns the hex encoded SHA-256 digest of the UTF-8 text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// HashHex returns the hex encoded SHA-256 digest of the bytes the hex
// string encodes.
func HashHex(hexData string) (string, error) {
	b, err := hex.DecodeString(hexData)
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// GenerateKey produces a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// HexToKey parses a hex encoded private key.
func HexToKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// LoadKey reads a private key from a hex key file.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(path)
}

// SaveKey writes the private key to a hex key file.
func SaveKey(path string, privateKey *ecdsa.PrivateKey) error {
	return crypto.SaveECDSA(path, privateKey)
}

// KeyToHex returns the hex encoding of the private key.
func KeyToHex(privateKey *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSA(privateKey))
}

// PublicKeyHex returns the uncompressed public key for the private key in hex.
func PublicKeyHex(privateKey *ecdsa.PrivateKey) string {
	return hex.EncodeToString(crypto.FromECDSAPub(&privateKey.PublicKey))
}

// Sign signs the hex encoded digest with the private key.
func Sign(privateKey *ecdsa.PrivateKey, hashHex string) (Signature, error) {
	digest, err := decodeDigest(hashHex)
	if err != nil {
		return Signature{}, err
	}

	// The signature comes back in the [R|S|V] format.
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}

	s := Signature{
		R: hex.EncodeToString(sig[:32]),
		S: hex.EncodeToString(sig[32:64]),
	}

	return s, nil
}

// Verify reports whether the signature over the hex encoded digest was
// produced by the owner of the hex encoded public key. High-S signatures
// are accepted.
func Verify(publicKeyHex string, hashHex string, sig Signature) bool {
	digest, err := decodeDigest(hashHex)
	if err != nil {
		return false
	}

	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}

	publicKey, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if !setScalar(&r, sig.R) || !setScalar(&s, sig.S) {
		return false
	}

	return btcecdsa.NewSignature(&r, &s).Verify(digest, publicKey)
}

// AddressFromPublicKey derives the account address for the hex encoded
// public key: the last 40 hex characters of the double SHA-256 over the key
// bytes. A key that isn't hex has no address.
func AddressFromPublicKey(publicKeyHex string) string {
	h, err := HashHex(publicKeyHex)
	if err != nil {
		return ""
	}

	h, err = HashHex(h)
	if err != nil {
		return ""
	}

	return AddressPrefix + h[len(h)-addressHexLen:]
}

// Address derives the account address for the private key.
func Address(privateKey *ecdsa.PrivateKey) string {
	return AddressFromPublicKey(PublicKeyHex(privateKey))
}

// IsAddress reports whether the string is a well formed account address.
func IsAddress(address string) bool {
	hexPart, found := strings.CutPrefix(address, AddressPrefix)
	if !found || len(hexPart) != addressHexLen {
		return false
	}

	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// IsPublicKey reports whether the string is an uncompressed public key in hex.
func IsPublicKey(publicKeyHex string) bool {
	if len(publicKeyHex) != publicKeyHexLen {
		return false
	}

	b, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}

	_, err = btcec.ParsePubKey(b)
	return err == nil
}

// =============================================================================

// decodeDigest converts a 64 character hex digest into its 32 bytes.
func decodeDigest(hashHex string) ([]byte, error) {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}

	if len(digest) != sha256.Size {
		return nil, errors.New("digest must be 32 bytes")
	}

	return digest, nil
}

// setScalar loads a hex value into the scalar. Values that are not padded
// to an even length are accepted.
func setScalar(v *btcec.ModNScalar, hexValue string) bool {
	if len(hexValue) == 0 || len(hexValue) > 64 {
		return false
	}

	if len(hexValue)%2 == 1 {
		hexValue = "0" + hexValue
	}

	b, err := hex.DecodeString(hexValue)
	if err != nil {
		return false
	}

	if overflow := v.SetByteSlice(b); overflow {
		return false
	}

	return !v.IsZero()
}
