package model

// RunSummary is the aggregate outcome of one synchronous batch run.
// Processed counts every listed item the run looked at, including items
// skipped because they were already completed; Success counts only items
// that completed during this run.
type RunSummary struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
}

// AsyncSummary is returned immediately by an asynchronous trigger, before
// any item has been processed. Final outcomes must be polled per item.
type AsyncSummary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Skip    int `json:"skip"`
}
