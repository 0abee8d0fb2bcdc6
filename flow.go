package mxauth

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// normalizeHomeserver validates a user-typed homeserver string and defaults
// the scheme to https when none is present. The returned URL has no trailing
// slash.
func normalizeHomeserver(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidHomeserver
	}

	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", ErrInvalidHomeserver
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidHomeserver
	}

	return strings.TrimSuffix(parsed.String(), "/"), nil
}

// buildLoginFlowResult extracts the SSO identity-provider list from the raw
// flow list and sorts it by display name. Sorting is stable so providers with
// equal names keep the server order.
func buildLoginFlowResult(homeserver string, flows []LoginFlow) *LoginFlowResult {
	var providers []SSOProvider
	for _, flow := range flows {
		if flow.Type == StageTypeSSO && len(flow.IdentityProviders) > 0 {
			providers = append(providers, flow.IdentityProviders...)
			break
		}
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Name < providers[j].Name
	})

	return &LoginFlowResult{
		Homeserver:   homeserver,
		SSOProviders: providers,
		Flows:        flows,
	}
}

// flowResult computes the missing/completed stage partition from a renewed
// authentication session. A stage is mandatory iff every alternative flow
// contains it. Stage identifiers are ordered lexicographically so the result
// is deterministic regardless of server map ordering.
func flowResult(auth AuthenticationSession) FlowResult {
	seen := make(map[string]struct{})
	var allTypes []string
	for _, flow := range auth.Flows {
		for _, stageType := range flow.Stages {
			if _, ok := seen[stageType]; !ok {
				seen[stageType] = struct{}{}
				allTypes = append(allTypes, stageType)
			}
		}
	}
	sort.Strings(allTypes)

	completed := make(map[string]struct{}, len(auth.Completed))
	for _, stageType := range auth.Completed {
		completed[stageType] = struct{}{}
	}

	var result FlowResult
	for _, stageType := range allTypes {
		mandatory := true
		for _, flow := range auth.Flows {
			if !containsStage(flow.Stages, stageType) {
				mandatory = false
				break
			}
		}

		stage := parseStage(stageType, mandatory, auth.Params[stageType])
		if _, done := completed[stageType]; done {
			result.CompletedStages = append(result.CompletedStages, stage)
		} else {
			result.MissingStages = append(result.MissingStages, stage)
		}
	}

	return result
}

func containsStage(stages []string, stageType string) bool {
	for _, s := range stages {
		if s == stageType {
			return true
		}
	}
	return false
}

func parseStage(stageType string, mandatory bool, rawParams json.RawMessage) Stage {
	stage := Stage{Type: stageType, Mandatory: mandatory}

	switch stageType {
	case StageTypeRecaptcha:
		stage.Kind = StageReCaptcha
		var params struct {
			PublicKey string `json:"public_key"`
		}
		if len(rawParams) > 0 {
			// A malformed params object degrades to an empty public key.
			_ = json.Unmarshal(rawParams, &params)
		}
		stage.PublicKey = params.PublicKey
	case StageTypeEmailIdentity:
		stage.Kind = StageEmail
	case StageTypeMSISDN:
		stage.Kind = StageMSISDN
	case StageTypeDummy:
		stage.Kind = StageDummy
	case StageTypeTerms:
		stage.Kind = StageTerms
		stage.Policies = decodeParamObject(rawParams)
	default:
		stage.Kind = StageOther
		stage.Params = decodeParamObject(rawParams)
	}

	return stage
}

func decodeParamObject(rawParams json.RawMessage) map[string]any {
	if len(rawParams) == 0 {
		return map[string]any{}
	}
	var params map[string]any
	if err := json.Unmarshal(rawParams, &params); err != nil || params == nil {
		return map[string]any{}
	}
	return params
}
