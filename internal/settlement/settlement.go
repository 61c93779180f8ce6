// Package settlement executes real-world value transfer and asset issuance.
// The rest of the service treats it as an opaque, at-least-once side effect;
// a DryRunSender stands in outside production.
package settlement

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"
)

// NFTMeta describes the asset to issue alongside a payout.
type NFTMeta struct {
	Name       string      `json:"name"`
	Breed      string      `json:"breed"`
	Image      string      `json:"image"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

// Validate checks the metadata an issuance request must carry.
func (m NFTMeta) Validate() error {
	if m.Name == "" {
		return errors.New("nft metadata: name is required")
	}
	if m.Image == "" {
		return errors.New("nft metadata: image is required")
	}
	return nil
}

// Sender is the settlement collaborator: one transfer call and one optional
// asset-issuance call, both returning an opaque reference.
type Sender interface {
	// Transfer moves amountWei to the destination address. The memo is
	// advisory; it never reaches the chain.
	Transfer(ctx context.Context, toAddress string, amountWei *big.Int, memo string) (txHash string, err error)
	// MintNFT issues an asset to owner described by meta.
	MintNFT(ctx context.Context, owner string, meta NFTMeta) (txHash string, err error)
	// DryRun reports whether execution is simulated.
	DryRun() bool
}

// DryRunSender simulates settlement for local and test use: no I/O, opaque
// references in the same shape real ones take. Issuance prerequisites are
// still enforced, so a missing collection contract fails the mint leg the
// same way it would against the real chain.
type DryRunSender struct {
	nftConfigured bool
	now           func() time.Time
}

func NewDryRunSender(nftConfigured bool) *DryRunSender {
	return &DryRunSender{nftConfigured: nftConfigured, now: time.Now}
}

func (s *DryRunSender) Transfer(_ context.Context, toAddress string, _ *big.Int, _ string) (string, error) {
	if toAddress == "" {
		return "", errors.New("transfer: destination address is required")
	}
	return s.ref(), nil
}

func (s *DryRunSender) MintNFT(_ context.Context, owner string, meta NFTMeta) (string, error) {
	if !s.nftConfigured {
		return "", errors.New("mint: nft contract address not configured")
	}
	if owner == "" {
		return "", errors.New("mint: owner address is required")
	}
	if err := meta.Validate(); err != nil {
		return "", err
	}
	return s.ref(), nil
}

func (s *DryRunSender) DryRun() bool { return true }

func (s *DryRunSender) ref() string {
	return "dryrun_" + strconv.FormatInt(s.now().UnixMilli(), 36)
}
