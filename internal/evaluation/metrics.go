package evaluation

// RecallAtK computes Recall@K: the fraction of relevant items found in the top-K retrieved results.
// Returns 0.0 if relevant is empty.
func RecallAtK(relevant, retrieved []string, k int) float64 {
	if len(relevant) == 0 {
		return 0.0
	}

	relevantSet := make(map[string]struct{}, len(relevant))
	for _, r := range relevant {
		relevantSet[r] = struct{}{}
	}

	topK := retrieved
	if k < len(topK) {
		topK = topK[:k]
	}

	found := 0
	for _, r := range topK {
		if _, ok := relevantSet[r]; ok {
			found++
			delete(relevantSet, r)
		}
	}

	return float64(found) / float64(len(relevant))
}

// BlockRecall is the fraction of unsafe outputs the filter blocked.
// Returns 1.0 when there were no unsafe outputs to block.
func BlockRecall(truePositives, falseNegatives int) float64 {
	total := truePositives + falseNegatives
	if total == 0 {
		return 1.0
	}
	return float64(truePositives) / float64(total)
}

// FalsePositiveRate is the fraction of safe outputs the filter blocked.
// Returns 0.0 when there were no safe outputs.
func FalsePositiveRate(falsePositives, trueNegatives int) float64 {
	total := falsePositives + trueNegatives
	if total == 0 {
		return 0.0
	}
	return float64(falsePositives) / float64(total)
}
