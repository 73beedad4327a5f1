// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package policy

// Tier selects which configured model serves a request.
type Tier string

const (
	// TierPrimary is the full-capability model.
	TierPrimary Tier = "primary"
	// TierEconomy is the cost-optimized model for mechanical intents.
	TierEconomy Tier = "economy"
)

// Directive is the routing decision for one intent: which model tier, how
// much output to allow, whether the reply streams, and the system prompt
// that frames the model's role.
type Directive struct {
	SystemPrompt    string
	Tier            Tier
	MaxOutputTokens int
	Streaming       bool
}

const groundingRule = " Base your answer only on the provided book passages" +
	" and conversation. If the passages do not contain the answer, say so" +
	" plainly instead of inventing one."

// directives is the closed routing table. Enhancement always runs on the
// primary tier: its output is stored as a note, so quality beats cost.
var directives = map[Intent]Directive{
	IntentTranslate: {
		SystemPrompt: "You are a literary translator. Translate the given" +
			" passage faithfully, preserving tone and register. Reply with" +
			" the translation only.",
		Tier:            TierEconomy,
		MaxOutputTokens: 800,
		Streaming:       true,
	},
	IntentExplain: {
		SystemPrompt: "You are a patient reading companion. Explain the" +
			" selected passage in clear, plain language." + groundingRule,
		Tier:            TierPrimary,
		MaxOutputTokens: 1000,
		Streaming:       true,
	},
	IntentAnalyze: {
		SystemPrompt: "You are a literary analyst. Examine the passage's" +
			" themes, devices, and context." + groundingRule,
		Tier:            TierPrimary,
		MaxOutputTokens: 1200,
		Streaming:       true,
	},
	IntentAsk: {
		SystemPrompt: "You are a knowledgeable reading companion answering" +
			" a reader's question about this book." + groundingRule,
		Tier:            TierPrimary,
		MaxOutputTokens: 1200,
		Streaming:       true,
	},
	IntentEnhance: {
		SystemPrompt: "You enrich a reader's note about a passage. Expand" +
			" it with relevant context from the book, keeping the reader's" +
			" own observations intact." + groundingRule,
		Tier:            TierPrimary,
		MaxOutputTokens: 600,
		Streaming:       false,
	},
	IntentSummarize: {
		SystemPrompt: "You write concise summaries. Summarize the passage" +
			" in at most three sentences, keeping only what matters.",
		Tier:            TierEconomy,
		MaxOutputTokens: 400,
		Streaming:       false,
	},
	IntentQuestion: {
		SystemPrompt: "You write study questions. Produce two or three" +
			" thought-provoking questions about the passage, one per line.",
		Tier:            TierEconomy,
		MaxOutputTokens: 500,
		Streaming:       false,
	},
}

// DialogIntents returns the intents that stream over the chat endpoint, as
// plain strings for validators.
func DialogIntents() []string {
	var out []string
	for _, intent := range AllIntents {
		if directives[intent].Streaming {
			out = append(out, string(intent))
		}
	}
	return out
}

// For returns the routing directive for an intent. The second return is
// false for unknown intents; callers validate before routing, so a miss is
// a programming error upstream.
func For(intent Intent) (Directive, bool) {
	directive, ok := directives[intent]
	return directive, ok
}
