package config

import (
	"fmt"
	"sort"
	"strings"
)

// ProviderEnv flattens a repository's provider envelope into
// `<PROVIDER_UPPER>_<PATH_JOINED_WITH_UNDERSCORE_UPPER>=value` strings
// (spec §6 "Provider environment construction"), e.g.
// `aws: {access_key_id: X}` -> `AWS_ACCESS_KEY_ID=X`. Output is sorted for
// deterministic logging/testing.
func ProviderEnv(repo Repository) []string {
	var env []string
	for provider, raw := range repo.Provider {
		flattenInto(&env, strings.ToUpper(provider), raw)
	}
	sort.Strings(env)
	return env
}

func flattenInto(env *[]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, sub := range v {
			flattenInto(env, prefix+"_"+strings.ToUpper(key), sub)
		}
	default:
		*env = append(*env, fmt.Sprintf("%s=%v", prefix, v))
	}
}

// RepositoryEnv builds the base engine environment for repository
// access: RESTIC_REPOSITORY, RESTIC_PASSWORD, plus the flattened provider
// envelope.
func RepositoryEnv(repo Repository) []string {
	env := []string{
		"RESTIC_REPOSITORY=" + repo.Repository,
		"RESTIC_PASSWORD=" + repo.Password,
	}
	return append(env, ProviderEnv(repo)...)
}
