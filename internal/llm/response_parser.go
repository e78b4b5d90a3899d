package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first JSON object out of a raw completion.
// Models wrap JSON in markdown fences or prose more often than not, so
// the parser is deliberately tolerant: it strips code fences, then scans
// for the outermost brace pair.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

// parseUnderstandResponse decodes a collaborator extraction response,
// dropping malformed items (missing names) rather than failing the batch.
func parseUnderstandResponse(raw string) (*UnderstandResult, error) {
	blob, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var result UnderstandResult
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return nil, fmt.Errorf("failed to decode understand response: %w", err)
	}

	entities := result.Entities[:0]
	for _, e := range result.Entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		entities = append(entities, e)
	}
	result.Entities = entities

	rels := result.Relationships[:0]
	for _, r := range result.Relationships {
		if strings.TrimSpace(r.Subject) == "" || strings.TrimSpace(r.Object) == "" || r.Predicate == "" {
			continue
		}
		rels = append(rels, r)
	}
	result.Relationships = rels

	return &result, nil
}

type compressResponse struct {
	Summary string `json:"summary"`
}

// parseCompressResponse decodes a summary compression response.
func parseCompressResponse(raw string) (string, error) {
	blob, err := extractJSON(raw)
	if err != nil {
		// Some models return the bare summary without JSON; accept a short
		// plain-text response rather than dropping the work.
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" && len(trimmed) < 600 {
			return trimmed, nil
		}
		return "", err
	}

	var resp compressResponse
	if err := json.Unmarshal([]byte(blob), &resp); err != nil {
		return "", fmt.Errorf("failed to decode compress response: %w", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return "", fmt.Errorf("compress response contained empty summary")
	}
	return resp.Summary, nil
}

type reasonResponse struct {
	Inferences []ProposedInference `json:"inferences"`
}

// parseReasonResponse decodes a reasoning response, dropping inferences
// with no text or no entities.
func parseReasonResponse(raw string) ([]ProposedInference, error) {
	blob, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var resp reasonResponse
	if err := json.Unmarshal([]byte(blob), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode reason response: %w", err)
	}

	out := resp.Inferences[:0]
	for _, inf := range resp.Inferences {
		if strings.TrimSpace(inf.Inference) == "" || len(inf.Entities) == 0 {
			continue
		}
		if inf.Confidence < 0 {
			inf.Confidence = 0
		}
		if inf.Confidence > 1 {
			inf.Confidence = 1
		}
		out = append(out, inf)
	}
	return out, nil
}

// parseRateResponse decodes an importance classification response.
func parseRateResponse(raw string) (*RateResult, error) {
	blob, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var resp RateResult
	if err := json.Unmarshal([]byte(blob), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode rate response: %w", err)
	}
	if resp.Importance == "" {
		return nil, fmt.Errorf("rate response missing importance")
	}
	if resp.ImportanceScore < 0 {
		resp.ImportanceScore = 0
	}
	if resp.ImportanceScore > 1 {
		resp.ImportanceScore = 1
	}
	return &resp, nil
}
