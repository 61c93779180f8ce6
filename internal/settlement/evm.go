package settlement

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// mintABI is the minimal surface of the NFT collection contract.
const mintABI = `[{"name":"mint","type":"function","inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"}],"outputs":[]}]`

const (
	transferGasLimit = 21_000
	mintGasLimit     = 300_000
)

// EVMConfig configures the on-chain sender.
type EVMConfig struct {
	RPCURL      string
	PrivateKey  string // hex, no 0x prefix
	ChainID     int64
	NFTContract string // optional; mint fails when unset
}

// EVMSender settles payouts as native transfers and issues assets through
// the configured NFT collection contract.
type EVMSender struct {
	eth         *ethclient.Client
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	nftContract common.Address
	hasNFT      bool
	abi         abi.ABI
}

func NewEVMSender(cfg EVMConfig) (*EVMSender, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse payout private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(mintABI))
	if err != nil {
		return nil, fmt.Errorf("parse mint abi: %w", err)
	}

	s := &EVMSender{
		eth:     eth,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(cfg.ChainID),
		abi:     parsed,
	}
	if cfg.NFTContract != "" {
		s.nftContract = common.HexToAddress(cfg.NFTContract)
		s.hasNFT = true
	}
	return s, nil
}

// Transfer moves amountWei as a plain native transfer. The memo stays
// off-chain (the ledger records it): calldata would raise the intrinsic gas
// cost past the pinned transferGasLimit and the txpool would reject the
// transaction.
func (s *EVMSender) Transfer(ctx context.Context, toAddress string, amountWei *big.Int, _ string) (string, error) {
	if !common.IsHexAddress(toAddress) {
		return "", fmt.Errorf("transfer: invalid destination address %q", toAddress)
	}
	to := common.HexToAddress(toAddress)
	return s.send(ctx, &to, amountWei, nil, transferGasLimit)
}

func (s *EVMSender) MintNFT(ctx context.Context, owner string, meta NFTMeta) (string, error) {
	if !s.hasNFT {
		return "", errors.New("mint: nft contract address not configured")
	}
	if err := meta.Validate(); err != nil {
		return "", err
	}
	if !common.IsHexAddress(owner) {
		return "", fmt.Errorf("mint: invalid owner address %q", owner)
	}

	uri, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("mint: encode metadata: %w", err)
	}
	data, err := s.abi.Pack("mint", common.HexToAddress(owner), string(uri))
	if err != nil {
		return "", fmt.Errorf("mint: pack call: %w", err)
	}
	return s.send(ctx, &s.nftContract, big.NewInt(0), data, mintGasLimit)
}

func (s *EVMSender) DryRun() bool { return false }

// send signs and broadcasts a transaction. The caller retries, not us: the
// idempotency layer above guards duplicate submissions.
func (s *EVMSender) send(ctx context.Context, to *common.Address, value *big.Int, data []byte, gasLimit uint64) (string, error) {
	nonce, err := s.eth.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}
