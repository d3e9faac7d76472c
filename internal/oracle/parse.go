package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"ai-trader-arena/internal/types"
)

// ParseError reports a model response that could not be turned into
// typed proposals. The raw content travels with it so failed cycles
// stay debuggable from the decision log.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle response rejected: %s", e.Reason)
}

// rawProposal mirrors the JSON objects the prompt asks for.
type rawProposal struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Leverage   int     `json:"leverage"`
	SizeUSD    float64 `json:"position_size_usd"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Confidence int     `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ParseDecision splits a model reply into the free-form reasoning trace
// and the trailing JSON decision array. Everything before the array is
// kept verbatim as the chain-of-thought trace.
func ParseDecision(content, traderID string) (*types.OracleDecision, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	arr, start := extractArray(content)
	if start < 0 {
		return nil, &ParseError{Reason: "no JSON decision array found", Raw: content}
	}
	cot := strings.TrimSpace(content[:start])

	var raws []rawProposal
	if err := json.Unmarshal([]byte(sanitizeJSON(arr)), &raws); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("malformed decision array: %v", err), Raw: content}
	}

	proposals := make([]types.ProposedAction, 0, len(raws))
	for i, r := range raws {
		p, err := validateProposal(r, traderID)
		if err != nil {
			return nil, &ParseError{Reason: fmt.Sprintf("decision %d: %v", i, err), Raw: content}
		}
		proposals = append(proposals, p)
	}

	return &types.OracleDecision{CoTTrace: cot, Proposals: proposals}, nil
}

func validateProposal(r rawProposal, traderID string) (types.ProposedAction, error) {
	action := types.Action(strings.ToLower(strings.TrimSpace(r.Action)))
	if !action.Valid() {
		return types.ProposedAction{}, fmt.Errorf("unknown action %q", r.Action)
	}
	symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
	if symbol == "" && !action.IsNoop() {
		return types.ProposedAction{}, fmt.Errorf("action %s without a symbol", action)
	}
	if action.IsOpen() {
		if r.SizeUSD <= 0 {
			return types.ProposedAction{}, fmt.Errorf("%s %s without position_size_usd", action, symbol)
		}
		if r.StopLoss <= 0 || r.TakeProfit <= 0 {
			return types.ProposedAction{}, fmt.Errorf("%s %s without stop_loss/take_profit", action, symbol)
		}
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		r.Confidence = 0
	}

	return types.ProposedAction{
		TraderID:   traderID,
		Symbol:     symbol,
		Action:     action,
		Leverage:   r.Leverage,
		SizeUSD:    r.SizeUSD,
		EntryHint:  r.EntryPrice,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Confidence: r.Confidence,
		Reasoning:  strings.TrimSpace(r.Reasoning),
	}, nil
}

// extractArray finds the first balanced JSON array in content by bracket
// matching. Models often wrap the array in markdown fences or prepend
// prose, so plain json.Unmarshal on the whole reply is not enough.
func extractArray(content string) (arr string, start int) {
	start = strings.IndexByte(content, '[')
	if start < 0 {
		return "", -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return content[start : i+1], start
			}
		}
	}
	return "", -1
}

// sanitizeJSON fixes the typographic quotes some models emit inside
// otherwise valid JSON.
func sanitizeJSON(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`, // “ ”
		"‘", "'", "’", "'", // ‘ ’
	)
	return replacer.Replace(s)
}
