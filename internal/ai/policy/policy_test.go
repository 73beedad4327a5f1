// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentValid(t *testing.T) {
	for _, intent := range AllIntents {
		assert.True(t, intent.Valid(), "intent %q should be valid", intent)
	}

	assert.False(t, Intent("").Valid())
	assert.False(t, Intent("TRANSLATE").Valid())
	assert.False(t, Intent("delete").Valid())
}

func TestEveryIntentHasADirective(t *testing.T) {
	for _, intent := range AllIntents {
		directive, ok := For(intent)
		require.True(t, ok, "intent %q has no directive", intent)
		assert.NotEmpty(t, directive.SystemPrompt)
		assert.Positive(t, directive.MaxOutputTokens)
	}
}

func TestEnhanceRunsOnPrimaryTier(t *testing.T) {
	directive, ok := For(IntentEnhance)
	require.True(t, ok)
	assert.Equal(t, TierPrimary, directive.Tier)
	assert.False(t, directive.Streaming)
}

func TestDialogIntentsStream(t *testing.T) {
	for _, intent := range []Intent{IntentTranslate, IntentExplain, IntentAnalyze, IntentAsk} {
		directive, _ := For(intent)
		assert.True(t, directive.Streaming, "intent %q should stream", intent)
	}
}

func TestUnknownIntentMisses(t *testing.T) {
	_, ok := For(Intent("nonsense"))
	assert.False(t, ok)
}
