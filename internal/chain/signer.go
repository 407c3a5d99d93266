/**
 * @description
 * The permit relay signer. Given a temporary wallet's private key, a token
 * amount and a recipient, it signs an EIP-712 transfer permit off-chain and
 * submits a gasless `transferWithPermit` call through the relayer contract,
 * with replay-safe parameters (live on-chain nonce, short-lived deadline).
 *
 * Gas handling: the suggested gas price is biased by a configurable
 * multiplier for faster inclusion, clamped to a hard cap, and the gas limit
 * is estimated against the actual relayer calldata about to be submitted.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/ethclient: JSON-RPC chain access.
 * - github.com/ethereum/go-ethereum/accounts/abi/bind: transaction building
 *   for the relayer contract call.
 */

package chain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	baseUnitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	gweiInWei     = big.NewInt(1_000_000_000)
)

// SignerConfig carries the gas and deadline knobs for the permit signer.
type SignerConfig struct {
	GasPriceMultiplier    int64
	GasPriceCapGwei       int64
	PermitDeadlineSeconds int64
}

// PermitSigner signs transfer permits and relays them through the
// relayer contract. It is immutable after construction and safe for
// concurrent use.
type PermitSigner struct {
	client    *ethclient.Client
	contracts Contracts
	cfg       SignerConfig
}

// NewPermitSigner wires a signer against an established RPC client and the
// active network profile's contract bindings.
func NewPermitSigner(client *ethclient.Client, contracts Contracts, cfg SignerConfig) *PermitSigner {
	return &PermitSigner{client: client, contracts: contracts, cfg: cfg}
}

// ScaleToBaseUnits converts a whole-token amount to the 18-decimal integer
// representation used on-chain.
func ScaleToBaseUnits(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), baseUnitScale)
}

// CapGasPrice applies the inclusion-bias multiplier to a suggested gas price
// and clamps the result to the configured cap.
func CapGasPrice(suggested *big.Int, multiplier, capGwei int64) *big.Int {
	price := new(big.Int).Mul(suggested, big.NewInt(multiplier))
	cap := new(big.Int).Mul(big.NewInt(capGwei), gweiInWei)
	if price.Cmp(cap) > 0 {
		return cap
	}
	return price
}

// SignAndRelay constructs, signs and submits a gasless token transfer from
// the temporary wallet holding privateKeyHex to the recipient. The amount is
// in whole tokens. Any failure is returned to the caller; the signer does
// not retry.
func (s *PermitSigner) SignAndRelay(ctx context.Context, privateKeyHex string, amount int64, recipient common.Address) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return fmt.Errorf("parse wallet key: %w", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)
	scaledAmount := ScaleToBaseUnits(amount)

	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}

	deadline := time.Now().Unix() + s.cfg.PermitDeadlineSeconds

	suggested, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("read gas price: %w", err)
	}
	gasPrice := CapGasPrice(suggested, s.cfg.GasPriceMultiplier, s.cfg.GasPriceCapGwei)

	nonce, err := s.permitNonce(ctx, owner)
	if err != nil {
		return fmt.Errorf("read permit nonce: %w", err)
	}

	typedData := BuildPermitTypedData(
		owner,
		s.contracts.Relayer.Address,
		big.NewInt(amount).String(),
		nonce,
		deadline,
		chainID,
		s.contracts.Token.Address,
	)
	sig, err := SignPermit(key, typedData)
	if err != nil {
		return err
	}

	calldata, err := s.contracts.Relayer.ABI.Pack(
		"transferWithPermit",
		owner,
		recipient,
		scaledAmount,
		big.NewInt(deadline),
		sig.V,
		sig.R,
		sig.S,
	)
	if err != nil {
		return fmt.Errorf("pack relayer call: %w", err)
	}

	// Estimate against the exact call about to be relayed, not the permit
	// message values.
	relayerAddr := s.contracts.Relayer.Address
	gasLimit, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: owner,
		To:   &relayerAddr,
		Data: calldata,
	})
	if err != nil {
		return fmt.Errorf("estimate gas: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasPrice = gasPrice
	auth.GasLimit = gasLimit

	relayer := bind.NewBoundContract(relayerAddr, s.contracts.Relayer.ABI, s.client, s.client, s.client)
	tx, err := relayer.Transact(auth, "transferWithPermit",
		owner,
		recipient,
		scaledAmount,
		big.NewInt(deadline),
		sig.V,
		sig.R,
		sig.S,
	)
	if err != nil {
		return fmt.Errorf("relay transferWithPermit: %w", err)
	}

	log.Printf("level=info component=permit_signer msg=\"relayed transfer\" owner=%s recipient=%s amount=%d tx=%s gas_price=%s gas_limit=%d",
		owner.Hex(), recipient.Hex(), amount, tx.Hash().Hex(), gasPrice.String(), gasLimit)
	return nil
}

// permitNonce reads the token contract's current permit counter for the
// owner. The signed nonce must match this value at submission time.
func (s *PermitSigner) permitNonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := s.contracts.Token.ABI.Pack("nonces", owner)
	if err != nil {
		return nil, fmt.Errorf("pack nonces call: %w", err)
	}

	tokenAddr := s.contracts.Token.Address
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	out, err := s.contracts.Token.ABI.Unpack("nonces", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack nonces result: %w", err)
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonces result type %T", out[0])
	}
	return nonce, nil
}
