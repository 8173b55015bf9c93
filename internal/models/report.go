package models

// RunResult is the outcome of one item in a batch job.
type RunResult struct {
	OK    bool   `json:"success"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// Summary maps item names (supplier, competitor, provider) to results.
type Summary map[string]RunResult

func (s Summary) Succeeded(name string, count int) {
	s[name] = RunResult{OK: true, Count: count}
}

func (s Summary) Failed(name string, err error) {
	s[name] = RunResult{OK: false, Error: err.Error()}
}

// Total returns the summed count of successful items.
func (s Summary) Total() int {
	total := 0
	for _, r := range s {
		if r.OK {
			total += r.Count
		}
	}
	return total
}

func (s Summary) FailedCount() int {
	n := 0
	for _, r := range s {
		if !r.OK {
			n++
		}
	}
	return n
}
