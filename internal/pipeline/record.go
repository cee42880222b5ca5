package pipeline

// Stage is one step of a remote pipeline run, passed through from the
// platform for display.
type Stage struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Record tracks one active or completed pipeline run. Records live only in
// memory for the process lifetime; the Store owns them exclusively.
type Record struct {
	BuildID         int
	ApplicationName string

	// Status is nil until the first successful poll. An absent status is
	// treated as non-terminal.
	Status *Status

	Creator   string
	StartTime string
	EndTime   string
	StageList []Stage

	// Loading is true only while an abort request for this record is in
	// flight.
	Loading bool
}

// Terminal reports whether the record has reached a terminal status. A
// record without a status is still pending.
func (r *Record) Terminal() bool {
	return r.Status != nil && r.Status.Terminal()
}

// detail is the poll/detail response payload for one build.
type detail struct {
	BuildID   int     `json:"buildId"`
	Status    *Status `json:"status"`
	Creator   string  `json:"creator"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	StageList []Stage `json:"stageList"`
}

// merge folds a poll response into the record. Fields are merged, not
// replaced: empty response fields leave the current values alone, and a
// terminal status is never downgraded to a non-terminal one.
func (r *Record) merge(d detail) {
	if d.Status != nil {
		if !r.Terminal() || d.Status.Terminal() {
			status := *d.Status
			r.Status = &status
		}
	}
	if d.Creator != "" {
		r.Creator = d.Creator
	}
	if d.StartTime != "" {
		r.StartTime = d.StartTime
	}
	if d.EndTime != "" {
		r.EndTime = d.EndTime
	}
	if len(d.StageList) > 0 {
		r.StageList = append([]Stage(nil), d.StageList...)
	}
}

// clone returns a copy safe to hand outside the store's lock.
func (r *Record) clone() Record {
	out := *r
	if r.Status != nil {
		status := *r.Status
		out.Status = &status
	}
	out.StageList = append([]Stage(nil), r.StageList...)
	return out
}
