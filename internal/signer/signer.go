// Package signer implements EIP-712 typed-data hashing and signing/
// verification by the trusted key (components A and I). The domain is
// fixed: {name:"CloutCardsEvents", version:"1", chainId:<env>,
// verifyingContract:ZeroAddress}, and the signed type is
// RPCPayload{kind:string, payload:string, nonce:uint256}.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/cloutcards/pokerhouse/internal/apperr"
)

const DomainName = "CloutCardsEvents"
const DomainVersion = "1"

var rpcPayloadTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"RPCPayload": {
		{Name: "kind", Type: "string"},
		{Name: "payload", Type: "string"},
		{Name: "nonce", Type: "uint256"},
	},
}

// Signer holds the trusted secp256k1 key derived once from MNEMONIC at
// process start (§9 "Global state" — one of the three legitimate
// singletons). It is never logged.
type Signer struct {
	chainID *big.Int
	priv    *ecdsa.PrivateKey
	addr    common.Address
}

// New derives the trusted key from mnemonic. This backend does not need a
// full BIP-44 account tree — one key per deployment — so the seed's first
// 32 bytes become the secp256k1 scalar directly, matching the scope of a
// single "trusted key" described in §6/§9.
func New(mnemonic string, chainID int64) (*Signer, error) {
	if mnemonic == "" {
		return nil, apperr.New(apperr.InternalFatal, "MNEMONIC is required to sign")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, apperr.New(apperr.InternalFatal, "MNEMONIC is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")
	priv, err := crypto.ToECDSA(seed[:32])
	if err != nil {
		return nil, apperr.Wrap(apperr.InternalFatal, "derive trusted key", err)
	}
	return &Signer{
		chainID: big.NewInt(chainID),
		priv:    priv,
		addr:    crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// PublicKey returns the trusted key's address, published at /tee/publicKey.
func (s *Signer) PublicKey() common.Address { return s.addr }

// Digest computes the EIP-712 digest over (domain, kind, payloadJSON,
// nonce). nonce may be nil for non-withdrawal events, in which case it is
// signed as zero.
func Digest(chainID *big.Int, kind string, payloadJSON string, nonce *big.Int) ([32]byte, error) {
	n := nonce
	if n == nil {
		n = big.NewInt(0)
	}
	td := apitypes.TypedData{
		Types:       rpcPayloadTypes,
		PrimaryType: "RPCPayload",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"kind":    kind,
			"payload": payloadJSON,
			"nonce":   n.String(),
		},
	}
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.InvariantBreak, "hash EIP712Domain", err)
	}
	msgHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return [32]byte{}, apperr.Wrap(apperr.InvariantBreak, "hash RPCPayload", err)
	}
	raw := fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(msgHash))
	var out [32]byte
	copy(out[:], crypto.Keccak256([]byte(raw)))
	return out, nil
}

type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// Sign computes the digest and signs it with the trusted key.
func (s *Signer) Sign(kind string, payloadJSON string, nonce *big.Int) ([32]byte, Signature, error) {
	digest, err := Digest(s.chainID, kind, payloadJSON, nonce)
	if err != nil {
		return digest, Signature{}, err
	}
	out, err := s.SignDigest(digest)
	return digest, out, err
}

// SignDigest signs an arbitrary 32-byte digest directly with the trusted
// key. Used for contract-level authorizations that live under the
// contract's own EIP-712 domain (the escrow contract's withdrawal digest)
// rather than ours.
func (s *Signer) SignDigest(digest [32]byte) (Signature, error) {
	sig, err := crypto.Sign(digest[:], s.priv)
	if err != nil {
		return Signature{}, apperr.Wrap(apperr.InternalFatal, "sign digest", err)
	}
	var out Signature
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	return out, nil
}

// Verify recomputes the digest and recovers the signer address, comparing
// it against want (component I, property 1 in §8).
func Verify(chainID *big.Int, kind string, payloadJSON string, nonce *big.Int, sig Signature, want common.Address) (bool, error) {
	digest, err := Digest(chainID, kind, payloadJSON, nonce)
	if err != nil {
		return false, err
	}
	full := make([]byte, 65)
	copy(full[0:32], sig.R[:])
	copy(full[32:64], sig.S[:])
	full[64] = sig.V
	pub, err := crypto.SigToPub(digest[:], full)
	if err != nil {
		return false, apperr.Wrap(apperr.InvariantBreak, "recover signer", err)
	}
	return crypto.PubkeyToAddress(*pub) == want, nil
}
