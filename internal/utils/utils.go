package utils

// UniqueStrings returns the input with duplicates removed, preserving
// first-seen order.
func UniqueStrings(input []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, val := range input {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}
