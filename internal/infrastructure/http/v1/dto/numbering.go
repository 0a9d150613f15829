package dto

import (
	"time"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/numerator"
	"optiledger/internal/domain/numbering"
)

// --- Requests ---

// CommitRequest advances the counter after a document was saved with Number.
type CommitRequest struct {
	Number string `json:"number" binding:"required,max=64"`
}

// RepairRequest selects the counter scope to repair. Empty fiscal year repairs the unscoped counter.
type RepairRequest struct {
	FiscalYear string `json:"fiscalYear" binding:"max=32"`
}

// --- Responses ---

// CounterResponse is a stored counter record.
type CounterResponse struct {
	Count     int64     `json:"count"`
	Prefix    string    `json:"prefix"`
	Separator string    `json:"separator"`
	Format    string    `json:"format"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromCounter maps a record; nil stays nil.
func FromCounter(r *numerator.Record) *CounterResponse {
	if r == nil {
		return nil
	}
	return &CounterResponse{
		Count:     r.Count,
		Prefix:    r.Prefix,
		Separator: r.Separator,
		Format:    r.Format,
		Note:      r.Note,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// PreviewResponse is the number the next document would receive.
type PreviewResponse struct {
	Number       string `json:"number"`
	Candidate    int64  `json:"candidate"`
	DocumentType string `json:"documentType"`
	Counter      string `json:"counter"`
	Source       string `json:"source"`
	Degraded     string `json:"degraded,omitempty"`
}

// FromPreview maps a domain preview.
func FromPreview(p *numbering.Preview) PreviewResponse {
	return PreviewResponse{
		Number:       p.Number,
		Candidate:    p.Candidate,
		DocumentType: string(p.Key.DocumentType),
		Counter:      p.Key.Name(),
		Source:       string(p.Source),
		Degraded:     p.Degraded,
	}
}

// CommitResponse reports the counter advance. Warning is set when the document
// was kept but the counter could not be advanced.
type CommitResponse struct {
	Counter string         `json:"counter"`
	Count   int64          `json:"count"`
	Outcome string         `json:"outcome"`
	Warning *ErrorResponse `json:"warning,omitempty"`
}

// FromCommit maps a commit result.
func FromCommit(r *numbering.CommitResult) CommitResponse {
	resp := CommitResponse{
		Counter: r.Key.Name(),
		Count:   r.Count,
		Outcome: string(r.Outcome),
	}
	if r.Warning != nil {
		resp.Warning = FromAppError(r.Warning)
	}
	return resp
}

// IssueResponse is a claimed number. Nobody else receives it; store it on the document.
type IssueResponse struct {
	Number  string `json:"number"`
	Counter string `json:"counter"`
	Count   int64  `json:"count"`
}

// FromReservation maps a claimed number.
func FromReservation(r *numbering.Reservation) IssueResponse {
	return IssueResponse{Number: r.Number, Counter: r.Key.Name(), Count: r.Count}
}

// FromAppError maps an AppError without its cause.
func FromAppError(e *apperror.AppError) *ErrorResponse {
	return &ErrorResponse{Code: e.Code, Message: e.Message, Details: e.Details}
}

// DiagnoseResponse compares a counter with the documents on file.
type DiagnoseResponse struct {
	Counter          string           `json:"counter"`
	CounterExists    bool             `json:"counterExists"`
	Record           *CounterResponse `json:"record,omitempty"`
	DocumentCount    int64            `json:"documentCount"`
	MostRecentNumber string           `json:"mostRecentNumber,omitempty"`
	ParsedMostRecent *int64           `json:"parsedMostRecent,omitempty"`
	Drift            int64            `json:"drift"`
}

// FromReport maps a diagnose report.
func FromReport(r *numbering.Report) DiagnoseResponse {
	return DiagnoseResponse{
		Counter:          r.Key.Name(),
		CounterExists:    r.CounterExists,
		Record:           FromCounter(r.Counter),
		DocumentCount:    r.DocumentCount,
		MostRecentNumber: r.MostRecentNumber,
		ParsedMostRecent: r.ParsedMostRecent,
		Drift:            r.Drift,
	}
}

// RepairResponse summarizes a repair run.
type RepairResponse struct {
	Counter        string           `json:"counter"`
	HighestNumber  int64            `json:"highestNumber"`
	NextNumber     string           `json:"nextNumber"`
	TotalDocuments int64            `json:"totalDocuments"`
	Matched        int64            `json:"matched"`
	Skipped        int64            `json:"skipped"`
	Record         *CounterResponse `json:"record"`
}

// FromRepair maps a repair result.
func FromRepair(r *numbering.RepairResult) RepairResponse {
	return RepairResponse{
		Counter:        r.Key.Name(),
		HighestNumber:  r.HighestNumber,
		NextNumber:     r.NextNumber,
		TotalDocuments: r.TotalDocuments,
		Matched:        r.Matched,
		Skipped:        r.Skipped,
		Record:         FromCounter(r.Counter),
	}
}

// RepairHistoryQuery pages the repair history.
type RepairHistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// RepairEntryResponse is one audited repair.
type RepairEntryResponse struct {
	ID      string           `json:"id"`
	Counter string           `json:"counter"`
	ActorID string           `json:"actorId,omitempty"`
	Before  *CounterResponse `json:"before"`
	After   *CounterResponse `json:"after"`
	Scanned int64            `json:"scanned"`
	Matched int64            `json:"matched"`
	Skipped int64            `json:"skipped"`
	At      time.Time        `json:"at"`
}

// FromRepairHistory maps audit entries, newest first.
func FromRepairHistory(entries []numerator.RepairEntry) []RepairEntryResponse {
	out := make([]RepairEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, RepairEntryResponse{
			ID:      e.ID,
			Counter: e.Key.Name(),
			ActorID: e.ActorID,
			Before:  FromCounter(e.Before),
			After:   FromCounter(e.After),
			Scanned: e.Scanned,
			Matched: e.Matched,
			Skipped: e.Skipped,
			At:      e.At,
		})
	}
	return out
}
