package catalog

import (
	"errors"
	"fmt"
)

type RewardKind string

const (
	RewardXP         RewardKind = "xp"
	RewardTrait      RewardKind = "trait"
	RewardZoneUnlock RewardKind = "zone_unlock"
	RewardNFT        RewardKind = "nft"
)

// NFTDescriptor describes a collectible handed to the minting service.
type NFTDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// Reward is a closed tagged union: Kind selects which payload field is set.
//
//	xp          -> Amount
//	trait       -> ID (trait id)
//	zone_unlock -> ID (zone id)
//	nft         -> NFT
type Reward struct {
	Kind        RewardKind     `json:"type"`
	Amount      int            `json:"amount,omitempty"`
	ID          string         `json:"id,omitempty"`
	NFT         *NFTDescriptor `json:"nft,omitempty"`
	Description string         `json:"description,omitempty"`
}

func XPReward(amount int) Reward        { return Reward{Kind: RewardXP, Amount: amount} }
func TraitReward(traitID string) Reward { return Reward{Kind: RewardTrait, ID: traitID} }
func ZoneReward(zoneID string) Reward   { return Reward{Kind: RewardZoneUnlock, ID: zoneID} }

func NFTReward(d NFTDescriptor) Reward {
	return Reward{Kind: RewardNFT, NFT: &d}
}

var errBadReward = errors.New("malformed reward")

// Validate checks that exactly the payload matching Kind is populated.
func (r Reward) Validate() error {
	switch r.Kind {
	case RewardXP:
		if r.Amount < 0 {
			return fmt.Errorf("%w: xp amount %d < 0", errBadReward, r.Amount)
		}
		if r.ID != "" || r.NFT != nil {
			return fmt.Errorf("%w: xp reward carries id/nft", errBadReward)
		}
	case RewardTrait, RewardZoneUnlock:
		if r.ID == "" {
			return fmt.Errorf("%w: %s reward without id", errBadReward, r.Kind)
		}
		if r.Amount != 0 || r.NFT != nil {
			return fmt.Errorf("%w: %s reward carries amount/nft", errBadReward, r.Kind)
		}
	case RewardNFT:
		if r.NFT == nil || r.NFT.ID == "" {
			return fmt.Errorf("%w: nft reward without descriptor id", errBadReward)
		}
		if r.Amount != 0 || r.ID != "" {
			return fmt.Errorf("%w: nft reward carries amount/id", errBadReward)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errBadReward, r.Kind)
	}
	return nil
}

func (r Reward) String() string {
	switch r.Kind {
	case RewardXP:
		return fmt.Sprintf("xp+%d", r.Amount)
	case RewardTrait:
		return "trait:" + r.ID
	case RewardZoneUnlock:
		return "zone:" + r.ID
	case RewardNFT:
		if r.NFT != nil {
			return "nft:" + r.NFT.ID
		}
		return "nft:?"
	}
	return string(r.Kind)
}
