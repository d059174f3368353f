package services

import "fmt"

// ChunkJobs splits jobs into contiguous slices of at most size records,
// preserving order. Produces ceil(len(jobs)/size) chunks; the last chunk
// may be shorter. An empty input yields no chunks.
func ChunkJobs(jobs []ParsedJob, size int) [][]ParsedJob {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]ParsedJob
	for i := 0; i < len(jobs); i += size {
		end := i + size
		if end > len(jobs) {
			end = len(jobs)
		}
		chunks = append(chunks, jobs[i:end])
	}
	return chunks
}

// BatchDedupeKey identifies one logical batch of a run, so that the
// same batch is never enqueued twice.
func BatchDedupeKey(runID string, batchIndex int) string {
	return fmt.Sprintf("%s-batch-%d", runID, batchIndex)
}
