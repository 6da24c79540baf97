// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricingTierLookup(t *testing.T) {
	tier := GetPricingTier("claude-sonnet-4-5-20250929")
	assert.Equal(t, 3.0, tier.InputPerMillion)
	assert.Equal(t, 15.0, tier.OutputPerMillion)

	tier = GetPricingTier("claude-haiku-4-5")
	assert.Equal(t, 1.0, tier.InputPerMillion)

	tier = GetPricingTier("claude-opus-4-1")
	assert.Equal(t, 15.0, tier.InputPerMillion)
	assert.Equal(t, 75.0, tier.OutputPerMillion)

	tier = GetPricingTier("gemini-2-5-pro")
	assert.Equal(t, 1.25, tier.InputPerMillion)
	assert.Equal(t, 0.25, tier.CacheReadMultiplier)
}

func TestPricingPatternMatch(t *testing.T) {
	// Unknown suffixes still match the family.
	tier := GetPricingTier("claude-sonnet-4-5-custom-build")
	assert.Equal(t, 3.0, tier.InputPerMillion)

	tier = GetPricingTier("gemini-2-5-pro-latest")
	assert.Equal(t, 1.25, tier.InputPerMillion)
}

func TestPricingUnknownDefaultsToSonnet(t *testing.T) {
	tier := GetPricingTier("some-unknown-model")
	assert.Equal(t, 3.0, tier.InputPerMillion)
	assert.Equal(t, 15.0, tier.OutputPerMillion)
}

func TestDeriveCostSimple(t *testing.T) {
	cost := DeriveCost("claude-sonnet-4-5", TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 100_000,
	})
	// 1M input @ $3/M + 100K output @ $15/M
	assert.InDelta(t, 4.5, cost, 0.001)
}

func TestDeriveCostWithCache(t *testing.T) {
	cost := DeriveCost("claude-sonnet-4-5", TokenUsage{
		InputTokens:         1_000_000,
		OutputTokens:        100_000,
		CacheReadTokens:     800_000,
		CacheCreationTokens: 100_000,
	})
	// base = 100K @ $3/M = 0.30
	// cache write = 100K @ $3/M * 1.25 = 0.375
	// cache read = 800K @ $3/M * 0.1 = 0.24
	// output = 100K @ $15/M = 1.50
	assert.InDelta(t, 0.30+0.375+0.24+1.50, cost, 0.001)
}

func TestDeriveCostSaturatesBaseInput(t *testing.T) {
	// Cache components exceeding input must not push cost negative.
	cost := DeriveCost("claude-sonnet-4-5", TokenUsage{
		InputTokens:         100,
		CacheReadTokens:     200,
		CacheCreationTokens: 200,
	})
	assert.GreaterOrEqual(t, cost, 0.0)
}

func TestDeriveCostZeroUsage(t *testing.T) {
	assert.Equal(t, 0.0, DeriveCost("claude-opus-4-5", TokenUsage{}))
}

func TestDetectProvider(t *testing.T) {
	assert.Equal(t, "anthropic", DetectProvider("claude-sonnet-4-5"))
	assert.Equal(t, "google", DetectProvider("gemini-2-5-pro"))
	assert.Equal(t, "openai", DetectProvider("gpt-4.1"))
	assert.Equal(t, "openai", DetectProvider("o3"))
	assert.Equal(t, "anthropic", DetectProvider("something-else"))
}

func TestContextLimit(t *testing.T) {
	assert.Equal(t, int64(200_000), ContextLimit("claude-sonnet-4-5"))
	assert.Equal(t, int64(1_048_576), ContextLimit("gemini-2-5-pro"))
	assert.Equal(t, int64(128_000), ContextLimit("gpt-4-turbo"))
	assert.Equal(t, int64(200_000), ContextLimit("unknown"))
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.005", FormatCost(0.005))
	assert.Equal(t, "$1.50", FormatCost(1.50))
	assert.Equal(t, "$0.01", FormatCost(0.01))
	assert.Equal(t, "$0.000", FormatCost(0))
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "1.5M", FormatTokens(1_500_000))
	assert.Equal(t, "2M", FormatTokens(2_000_000))
	assert.Equal(t, "50K", FormatTokens(50_000))
	assert.Equal(t, "1.5K", FormatTokens(1_500))
	assert.Equal(t, "500", FormatTokens(500))
	assert.Equal(t, "0", FormatTokens(0))
}
