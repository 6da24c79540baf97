// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"fmt"
	"strings"
)

// PricingTier is per-million-token pricing for a model family, with
// multipliers for prompt-cache writes and reads relative to input price.
type PricingTier struct {
	InputPerMillion      float64
	OutputPerMillion     float64
	CacheWriteMultiplier float64
	CacheReadMultiplier  float64
}

func anthropicTier(input, output float64) PricingTier {
	return PricingTier{
		InputPerMillion:      input,
		OutputPerMillion:     output,
		CacheWriteMultiplier: 1.25,
		CacheReadMultiplier:  0.1,
	}
}

func googleTier(input, output float64) PricingTier {
	return PricingTier{
		InputPerMillion:      input,
		OutputPerMillion:     output,
		CacheWriteMultiplier: 1.0,
		CacheReadMultiplier:  0.25,
	}
}

func openaiTier(input, output float64) PricingTier {
	return PricingTier{
		InputPerMillion:      input,
		OutputPerMillion:     output,
		CacheWriteMultiplier: 1.0,
		CacheReadMultiplier:  0.5,
	}
}

var exactTiers = map[string]PricingTier{
	"claude-opus-4-5": anthropicTier(5.0, 25.0),

	"claude-sonnet-4-5-20250929": anthropicTier(3.0, 15.0),
	"claude-sonnet-4-5":          anthropicTier(3.0, 15.0),
	"claude-sonnet-4-0-20250514": anthropicTier(3.0, 15.0),
	"claude-sonnet-4":            anthropicTier(3.0, 15.0),
	"claude-3-7-sonnet-20250219": anthropicTier(3.0, 15.0),
	"claude-3-7-sonnet":          anthropicTier(3.0, 15.0),

	"claude-haiku-4-5-20251001": anthropicTier(1.0, 5.0),
	"claude-haiku-4-5":          anthropicTier(1.0, 5.0),

	"claude-opus-4-1-20250415": anthropicTier(15.0, 75.0),
	"claude-opus-4-1":          anthropicTier(15.0, 75.0),
	"claude-opus-4-0-20250415": anthropicTier(15.0, 75.0),
	"claude-opus-4":            anthropicTier(15.0, 75.0),

	"claude-3-haiku-20240307": anthropicTier(0.25, 1.25),
	"claude-3-haiku":          anthropicTier(0.25, 1.25),

	"gemini-2-5-pro":   googleTier(1.25, 5.0),
	"gemini-2.5-pro":   googleTier(1.25, 5.0),
	"gemini-2-5-flash": googleTier(0.075, 0.3),
	"gemini-2.5-flash": googleTier(0.075, 0.3),

	"o3":              openaiTier(10.0, 40.0),
	"o4-mini":         openaiTier(1.10, 4.40),
	"gpt-4.1":         openaiTier(2.0, 8.0),
	"gpt-4.1-mini":    openaiTier(0.40, 1.60),
	"gpt-4.1-nano":    openaiTier(0.10, 0.40),
}

// GetPricingTier looks up pricing for a model identifier: exact match,
// then family pattern, then Sonnet 4.5 pricing as the default.
func GetPricingTier(model string) PricingTier {
	if tier, ok := exactTiers[model]; ok {
		return tier
	}
	if tier, ok := patternTier(model); ok {
		return tier
	}
	return anthropicTier(3.0, 15.0)
}

func patternTier(model string) (PricingTier, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus-4-5"):
		return anthropicTier(5.0, 25.0), true
	case strings.Contains(m, "sonnet-4") || strings.Contains(m, "sonnet-3-7"):
		return anthropicTier(3.0, 15.0), true
	case strings.Contains(m, "haiku-4-5"):
		return anthropicTier(1.0, 5.0), true
	case strings.Contains(m, "opus-4"):
		return anthropicTier(15.0, 75.0), true
	case strings.Contains(m, "haiku-3") || strings.Contains(m, "3-haiku"):
		return anthropicTier(0.25, 1.25), true
	case strings.Contains(m, "gemini") && strings.Contains(m, "pro"):
		return googleTier(1.25, 5.0), true
	case strings.Contains(m, "gemini") && strings.Contains(m, "flash"):
		return googleTier(0.075, 0.3), true
	case strings.HasPrefix(m, "o3"):
		return openaiTier(10.0, 40.0), true
	case strings.HasPrefix(m, "o4"):
		return openaiTier(1.10, 4.40), true
	case strings.Contains(m, "gpt-4.1-nano"):
		return openaiTier(0.10, 0.40), true
	case strings.Contains(m, "gpt-4.1-mini"):
		return openaiTier(0.40, 1.60), true
	case strings.Contains(m, "gpt-4.1"):
		return openaiTier(2.0, 8.0), true
	}
	return PricingTier{}, false
}

// DeriveCost computes the USD cost of one turn. InputTokens is the
// total input; cache reads and writes are priced at their multipliers
// and subtracted from the base input, saturating at zero.
func DeriveCost(model string, usage TokenUsage) float64 {
	tier := GetPricingTier(model)

	baseInput := usage.InputTokens - usage.CacheReadTokens - usage.CacheCreationTokens
	if baseInput < 0 {
		baseInput = 0
	}

	inputCost := float64(baseInput) / 1_000_000 * tier.InputPerMillion
	cacheWriteCost := float64(usage.CacheCreationTokens) / 1_000_000 * tier.InputPerMillion * tier.CacheWriteMultiplier
	cacheReadCost := float64(usage.CacheReadTokens) / 1_000_000 * tier.InputPerMillion * tier.CacheReadMultiplier
	outputCost := float64(usage.OutputTokens) / 1_000_000 * tier.OutputPerMillion

	return inputCost + cacheWriteCost + cacheReadCost + outputCost
}

// DetectProvider infers the provider from a model identifier.
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return "openai"
	case strings.Contains(m, "gpt"), strings.Contains(m, "openai/"):
		return "openai"
	case strings.Contains(m, "gemini"), strings.Contains(m, "google/"):
		return "google"
	default:
		return "anthropic"
	}
}

// ContextLimit returns the default context window size for a model.
func ContextLimit(model string) int64 {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return 200_000
	case strings.Contains(m, "gemini"):
		return 1_048_576
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return 200_000
	case strings.Contains(m, "gpt-4"):
		return 128_000
	default:
		return 200_000
	}
}

// FormatCost renders a dollar amount for display, with extra precision
// below one cent.
func FormatCost(cost float64) string {
	if cost < 0.01 {
		return fmt.Sprintf("$%.3f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// FormatTokens renders a token count compactly, e.g. "1.5M", "50K", "500".
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		m := float64(n) / 1_000_000
		if diff := m - float64(int64(m+0.5)); diff < 0.05 && diff > -0.05 {
			return fmt.Sprintf("%.0fM", m)
		}
		return fmt.Sprintf("%.1fM", m)
	case n >= 1_000:
		k := float64(n) / 1_000
		if diff := k - float64(int64(k+0.5)); diff < 0.05 && diff > -0.05 {
			return fmt.Sprintf("%.0fK", k)
		}
		return fmt.Sprintf("%.1fK", k)
	default:
		return fmt.Sprintf("%d", n)
	}
}
