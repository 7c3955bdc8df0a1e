package result

import "sort"

// UniqueStrings returns the distinct values of in, sorted.
func UniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// UniqueUniforms drops repeated entries, keeping first occurrences in order.
func UniqueUniforms(in []UniformEntry) []UniformEntry {
	seen := make(map[UniformEntry]struct{}, len(in))
	out := make([]UniformEntry, 0, len(in))
	for _, u := range in {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// UniqueChunks drops repeated entries and orders the rest by source.
func UniqueChunks(in []ShaderEntry) []ShaderEntry {
	seen := make(map[ShaderEntry]struct{}, len(in))
	out := make([]ShaderEntry, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
