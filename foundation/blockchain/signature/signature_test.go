package signature_test

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pocketcoin/node/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	digest   = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
)

// =============================================================================

func Test_Hash(t *testing.T) {
	h := signature.Hash("abc")
	if h != digest {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", digest)
		t.Fatalf("Should get back the right hash: %s", h[:6])
	}

	if signature.Hash("abc") != h {
		t.Fatalf("Should get back the same hash twice.")
	}
}

func Test_Signing(t *testing.T) {
	pk, err := signature.HexToKey(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	pub := signature.PublicKeyHex(pk)
	if !signature.IsPublicKey(pub) {
		t.Fatalf("Should produce an uncompressed public key: %s", pub)
	}

	sig, err := signature.Sign(pk, digest)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if !signature.Verify(pub, digest, sig) {
		t.Fatalf("Should be able to verify the signature.")
	}

	other := signature.Hash("abd")
	if signature.Verify(pub, other, sig) {
		t.Fatalf("Should not verify the signature against a different digest.")
	}

	pk2, err := signature.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	if signature.Verify(signature.PublicKeyHex(pk2), digest, sig) {
		t.Fatalf("Should not verify the signature against a different key.")
	}
}

func Test_HighS(t *testing.T) {
	pk, err := signature.HexToKey(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	sig, err := signature.Sign(pk, digest)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	n := crypto.S256().Params().N
	s, _ := new(big.Int).SetString(sig.S, 16)
	highS := new(big.Int).Sub(n, s)

	flipped := signature.Signature{
		R: sig.R,
		S: fmt.Sprintf("%x", highS),
	}

	if !signature.Verify(signature.PublicKeyHex(pk), digest, flipped) {
		t.Fatalf("Should accept the high-S form of a valid signature.")
	}
}

// The uncompressed secp256k1 generator point is the public key of the
// private key 1. Its address is the double SHA-256 over the 65 key bytes.
const (
	generatorPub     = "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8"
	generatorAddress = "PC_3d1b5a2f2954f49b7e398b8d2a0193933621155f"
)

func Test_Address(t *testing.T) {
	t.Log("Given the need to derive addresses from public keys.")
	{
		pk, err := signature.HexToKey(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a private key: %s", failed, err)
		}

		pub := signature.PublicKeyHex(pk)
		addr := signature.AddressFromPublicKey(pub)

		h, err := signature.HashHex(pub)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to hash the public key bytes: %s", failed, err)
		}
		h, err = signature.HashHex(h)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to hash the digest bytes: %s", failed, err)
		}
		exp := "PC_" + h[len(h)-40:]
		if addr != exp {
			t.Logf("\t%s\tgot: %s", failed, addr)
			t.Logf("\t%s\texp: %s", failed, exp)
			t.Fatalf("\t%s\tShould derive the address from the double hash of the key bytes.", failed)
		}
		t.Logf("\t%s\tShould derive the address from the double hash of the key bytes.", success)

		if signature.AddressFromPublicKey(generatorPub) != generatorAddress {
			t.Logf("\t%s\tgot: %s", failed, signature.AddressFromPublicKey(generatorPub))
			t.Logf("\t%s\texp: %s", failed, generatorAddress)
			t.Fatalf("\t%s\tShould derive the known address for the generator point.", failed)
		}
		t.Logf("\t%s\tShould derive the known address for the generator point.", success)

		if signature.AddressFromPublicKey("not hex") != "" {
			t.Fatalf("\t%s\tShould not derive an address from a key that isn't hex.", failed)
		}
		t.Logf("\t%s\tShould not derive an address from a key that isn't hex.", success)

		if signature.Address(pk) != addr {
			t.Fatalf("\t%s\tShould derive the same address from the private key.", failed)
		}
		t.Logf("\t%s\tShould derive the same address from the private key.", success)

		if !signature.IsAddress(addr) {
			t.Fatalf("\t%s\tShould recognize a derived address.", failed)
		}
		t.Logf("\t%s\tShould recognize a derived address.", success)

		bad := []string{
			"",
			strings.TrimPrefix(addr, "PC_"),
			"PC_" + strings.Repeat("z", 40),
			addr + "00",
		}
		for _, b := range bad {
			if signature.IsAddress(b) {
				t.Fatalf("\t%s\tShould reject malformed address %q.", failed, b)
			}
		}
		t.Logf("\t%s\tShould reject malformed addresses.", success)
	}
}
