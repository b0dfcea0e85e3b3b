package plan

import "time"

// RecordStatus is the outcome of a planning run.
type RecordStatus string

const (
	RecordStatusReady      RecordStatus = "READY"
	RecordStatusInfeasible RecordStatus = "INFEASIBLE"
	RecordStatusUndecided  RecordStatus = "UNDECIDED"
	RecordStatusFailed     RecordStatus = "FAILED"
)

// Record is the persisted outcome of a planning run.
type Record struct {
	ID         string       `json:"id"`
	Status     RecordStatus `json:"status"`
	Duration   int          `json:"duration"`
	Actions    []Action     `json:"actions"`
	Partitions int          `json:"partitions"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewRecord summarizes p as a ready record. A nil plan yields an
// infeasible record.
func NewRecord(p *ReconfigurationPlan, partitions int) *Record {
	if p == nil {
		return &Record{Status: RecordStatusInfeasible, Partitions: partitions, Reason: "no viable reconfiguration plan"}
	}
	return &Record{
		ID:         p.ID(),
		Status:     RecordStatusReady,
		Duration:   p.Duration(),
		Actions:    p.Actions(),
		Partitions: partitions,
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Actions = append([]Action(nil), r.Actions...)
	return &c
}
