/**
 * @description
 * EIP-712 permit construction and off-chain signing. A permit authorizes the
 * relayer contract to move tokens on behalf of a temporary wallet without
 * the wallet paying gas; the token contract verifies the signature on-chain
 * via recovery against the typed-data hash.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/crypto: secp256k1 signing.
 * - github.com/ethereum/go-ethereum/signer/core/apitypes: canonical EIP-712
 *   typed-data hashing.
 */

package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PermitSignature is a 65-byte permit signature split into the components
// the relayer contract verifies on-chain.
type PermitSignature struct {
	V byte
	R [32]byte
	S [32]byte
}

// BuildPermitTypedData assembles the EIP-712 typed-data structure for a
// DailyCopToken transfer permit. The value travels as a decimal string; the
// nonce must equal the token contract's current counter for the owner or the
// relayed call will revert.
func BuildPermitTypedData(owner, spender common.Address, value string, nonce *big.Int, deadline int64, chainID *big.Int, verifyingContract common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           "1",
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    value,
			"nonce":    (*math.HexOrDecimal256)(new(big.Int).Set(nonce)),
			"deadline": (*math.HexOrDecimal256)(big.NewInt(deadline)),
		},
	}
}

// SignPermit hashes the typed data and signs it with the temporary wallet's
// key, splitting the signature into r (32 bytes), s (32 bytes) and the
// recovery id v normalized to 27/28.
func SignPermit(key *ecdsa.PrivateKey, typedData apitypes.TypedData) (PermitSignature, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return PermitSignature{}, fmt.Errorf("hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return PermitSignature{}, fmt.Errorf("sign permit: %w", err)
	}

	var out PermitSignature
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	if out.V < 27 {
		out.V += 27
	}
	return out, nil
}

// RecoverPermitSigner recovers the address that produced a permit signature
// over the given typed data. Used to sanity-check signatures without a node.
func RecoverPermitSigner(typedData apitypes.TypedData, sig PermitSignature) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash typed data: %w", err)
	}

	raw := make([]byte, 65)
	copy(raw[0:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V
	if raw[64] >= 27 {
		raw[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover permit signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
