package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"crypto-signal-bot/internal/analysis"
)

const (
	RecommendationOpen = "OPEN"
	RecommendationWait = "WAIT"
	RecommendationSkip = "SKIP"
)

// ValidationResult is the model's verdict on a proposed trade. Failed marks
// verdicts synthesized locally because the model call or its output could
// not be used.
type ValidationResult struct {
	QualityScore   float64  `json:"quality_score"`
	Confidence     string   `json:"confidence"`
	Confluences    []string `json:"confluences"`
	Risks          []string `json:"risks"`
	Recommendation string   `json:"recommendation"`
	Reasoning      string   `json:"reasoning"`
	Failed         bool     `json:"-"`
}

// Validator runs the AI quality review over consensus signals.
type Validator struct {
	client           *Client
	qualityThreshold float64
	logger           zerolog.Logger
}

func NewValidator(client *Client, qualityThreshold float64, logger zerolog.Logger) *Validator {
	return &Validator{
		client:           client,
		qualityThreshold: qualityThreshold,
		logger:           logger.With().Str("component", "ai_validator").Logger(),
	}
}

// ValidateSignal asks the model to review the proposed trade. It never
// returns an error: any failure degrades to a SKIP verdict with the cause in
// Reasoning, so a flaky model can block trades but not crash a pass.
func (v *Validator) ValidateSignal(ctx context.Context, result *analysis.ConsensusResult, marketContext string, winRate *float64) *ValidationResult {
	prompt := BuildValidationPrompt(result, marketContext, winRate)

	raw, err := v.client.Complete(ctx, validationSystemPrompt, prompt)
	if err != nil {
		v.logger.Warn().Err(err).Str("symbol", result.Symbol).Msg("AI validation call failed")
		return failedVerdict(fmt.Sprintf("validation unavailable (%s %s signal): %v",
			result.Symbol, signalWord(result.Signal), err))
	}

	verdict, err := ParseValidationResponse(raw)
	if err != nil {
		v.logger.Warn().Err(err).Str("symbol", result.Symbol).Msg("unparseable AI validation response")
		return failedVerdict(fmt.Sprintf("unparseable model response: %v", err))
	}

	v.logger.Info().
		Str("symbol", result.Symbol).
		Float64("quality_score", verdict.QualityScore).
		Str("recommendation", verdict.Recommendation).
		Msg("AI validation complete")
	return verdict
}

// ShouldOpen reports whether the verdict clears the trade for opening:
// either the quality score meets the threshold or the model explicitly says
// OPEN.
func (v *Validator) ShouldOpen(verdict *ValidationResult) bool {
	if verdict == nil {
		return false
	}
	return verdict.QualityScore >= v.qualityThreshold ||
		strings.EqualFold(verdict.Recommendation, RecommendationOpen)
}

func failedVerdict(reason string) *ValidationResult {
	return &ValidationResult{
		QualityScore:   0,
		Confidence:     "LOW",
		Recommendation: RecommendationSkip,
		Reasoning:      reason,
		Failed:         true,
	}
}

// ParseValidationResponse extracts the verdict JSON from a model reply.
// Models wrap JSON in markdown fences or chatter around it, so parsing
// tries the stripped text first and then scans for the last parsable JSON
// object in the reply.
func ParseValidationResponse(raw string) (*ValidationResult, error) {
	text := stripMarkdownFences(strings.TrimSpace(raw))

	var verdict ValidationResult
	if err := json.Unmarshal([]byte(text), &verdict); err == nil {
		return normalizeVerdict(&verdict), nil
	}

	block := extractJSONBlock(text)
	if block == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		return nil, fmt.Errorf("invalid verdict JSON: %w", err)
	}
	return normalizeVerdict(&verdict), nil
}

func normalizeVerdict(v *ValidationResult) *ValidationResult {
	v.Recommendation = strings.ToUpper(strings.TrimSpace(v.Recommendation))
	switch v.Recommendation {
	case RecommendationOpen, RecommendationWait, RecommendationSkip:
	default:
		v.Recommendation = RecommendationSkip
	}
	if v.QualityScore < 0 {
		v.QualityScore = 0
	}
	if v.QualityScore > 100 {
		v.QualityScore = 100
	}
	return v
}

// stripMarkdownFences removes a surrounding ```json ... ``` (or plain ```)
// code fence when present.
func stripMarkdownFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// extractJSONBlock returns the last balanced {...} block in text that
// parses as JSON. Scanning right to left prefers the final object, which is
// where models put the answer after their reasoning.
func extractJSONBlock(text string) string {
	for end := len(text) - 1; end >= 0; end-- {
		if text[end] != '}' {
			continue
		}
		depth := 0
		for start := end; start >= 0; start-- {
			switch text[start] {
			case '}':
				depth++
			case '{':
				depth--
			}
			if depth == 0 {
				candidate := text[start : end+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				break
			}
		}
	}
	return ""
}
