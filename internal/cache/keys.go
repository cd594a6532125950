package cache

import "fmt"

func RunStatusKey(runID string) string {
	return fmt.Sprintf("run:%s:status", runID)
}

func RunResultKey(runID string) string {
	return fmt.Sprintf("run:%s:result", runID)
}

func EmbeddedKey(providerID, contentHash string) string {
	return fmt.Sprintf("embedded:%s:%s", providerID, contentHash)
}
