// Package credits prices generation work and wraps provider calls with the
// pre-check / execute / settle protocol against the credit ledger.
package credits

import "sceneforge-backend/internal/models"

// Per-attempt credit prices by target type and resolution.
var attemptPrices = map[string]map[string]int{
	models.TargetTypeImage: {
		"hd": 18,
		"2k": 27,
		"4k": 45,
	},
	models.TargetTypeVideo: {
		"540p":  60,
		"1080p": 90,
	},
}

// Default resolutions when the caller does not specify one.
var defaultResolutions = map[string]string{
	models.TargetTypeImage: "2k",
	models.TargetTypeVideo: "1080p",
}

// CostPerAttempt returns the credit price of one generation attempt.
func CostPerAttempt(targetType, resolution string) int {
	prices, ok := attemptPrices[targetType]
	if !ok {
		prices = attemptPrices[models.TargetTypeImage]
		targetType = models.TargetTypeImage
	}
	if resolution == "" {
		resolution = defaultResolutions[targetType]
	}
	if price, ok := prices[resolution]; ok {
		return price
	}
	return prices[defaultResolutions[targetType]]
}
