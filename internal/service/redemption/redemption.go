// Package redemption decides which rewards a balance can pay for.
//
// CanRedeem is the only place where the decision is made: the reward list,
// the card view and the ledger processor all call it.
package redemption

import (
	"sort"
	"time"

	"github.com/nkiryanov/pointledger/internal/models"
)

// Available reports whether the reward is active and not expired at the moment
func Available(reward models.Reward, now time.Time) bool {
	if !reward.Active {
		return false
	}

	return reward.ExpiresAt == nil || !now.After(*reward.ExpiresAt)
}

// CanRedeem reports whether the reward can be redeemed with the balance
func CanRedeem(balance int64, reward models.Reward, now time.Time) bool {
	return Available(reward, now) && reward.PointsRequired <= balance
}

// Shortfall returns how many points are missing to pay for the reward, zero if none
func Shortfall(balance int64, reward models.Reward) int64 {
	return max(reward.PointsRequired-balance, 0)
}

// AffordableRewards returns rewards that can be redeemed now, cheapest first
func AffordableRewards(balance int64, rewards []models.Reward, now time.Time) []models.Reward {
	affordable := make([]models.Reward, 0, len(rewards))
	for _, reward := range rewards {
		if CanRedeem(balance, reward, now) {
			affordable = append(affordable, reward)
		}
	}

	sortCheapestFirst(affordable)
	return affordable
}

type RewardStatus struct {
	Reward     models.Reward
	Affordable bool
	Shortfall  int64
}

// Statuses describes every available reward against the balance, cheapest first
// Inactive and expired rewards are skipped
func Statuses(balance int64, rewards []models.Reward, now time.Time) []RewardStatus {
	available := make([]models.Reward, 0, len(rewards))
	for _, reward := range rewards {
		if Available(reward, now) {
			available = append(available, reward)
		}
	}
	sortCheapestFirst(available)

	statuses := make([]RewardStatus, 0, len(available))
	for _, reward := range available {
		statuses = append(statuses, RewardStatus{
			Reward:     reward,
			Affordable: CanRedeem(balance, reward, now),
			Shortfall:  Shortfall(balance, reward),
		})
	}

	return statuses
}

// Progress returns percent of the threshold collected, capped at 100
func Progress(balance int64, threshold int64) int {
	if threshold <= 0 {
		return 0
	}
	if balance >= threshold {
		return 100
	}

	return int(balance * 100 / threshold)
}

func sortCheapestFirst(rewards []models.Reward) {
	sort.SliceStable(rewards, func(i, j int) bool {
		return rewards[i].PointsRequired < rewards[j].PointsRequired
	})
}
