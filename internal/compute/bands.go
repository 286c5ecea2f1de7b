package compute

// rowBand is a contiguous range of rows [y0, y1) handled by one worker.
type rowBand struct{ y0, y1 int }

// workerBands collects the bands assigned to a single worker.
type workerBands struct {
	bands []rowBand
}

// splitRows cuts rows into bands of at most bandRows rows.
func splitRows(rows, bandRows int) []rowBand {
	if bandRows < 1 {
		bandRows = 1
	}
	out := make([]rowBand, 0, (rows+bandRows-1)/bandRows)
	for y := 0; y < rows; y += bandRows {
		end := min(y+bandRows, rows)
		out = append(out, rowBand{y0: y, y1: end})
	}
	return out
}

// assignRowBands distributes bands across workers in round robin fashion.
func assignRowBands(workerCount int, bands []rowBand) []workerBands {
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(bands) && len(bands) > 0 {
		workerCount = len(bands)
	}
	out := make([]workerBands, workerCount)
	for idx, b := range bands {
		out[idx%workerCount].bands = append(out[idx%workerCount].bands, b)
	}
	return out
}
