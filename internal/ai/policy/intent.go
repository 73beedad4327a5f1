// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package policy maps user intents to model routing and prompt decisions.
package policy

// Intent classifies what the user wants the model to do. The set is closed;
// unknown values are rejected at the HTTP boundary.
type Intent string

const (
	IntentTranslate Intent = "translate"
	IntentExplain   Intent = "explain"
	IntentAnalyze   Intent = "analyze"
	IntentAsk       Intent = "ask"
	IntentEnhance   Intent = "enhance"
	IntentSummarize Intent = "summarize"
	IntentQuestion  Intent = "question"
)

// AllIntents lists every accepted intent, in a stable order for validation
// messages.
var AllIntents = []Intent{
	IntentTranslate,
	IntentExplain,
	IntentAnalyze,
	IntentAsk,
	IntentEnhance,
	IntentSummarize,
	IntentQuestion,
}

// Valid reports whether the intent is one of the accepted values.
func (intent Intent) Valid() bool {
	for _, known := range AllIntents {
		if intent == known {
			return true
		}
	}
	return false
}

// Strings returns the intents as plain strings, for validators.
func Strings() []string {
	out := make([]string, len(AllIntents))
	for i, intent := range AllIntents {
		out[i] = string(intent)
	}
	return out
}
