package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSource is the concrete Source wired against the external time-tracking
// system's per-date punch feed, in the same resty request/response idiom
// used elsewhere in this codebase.
type HTTPSource struct {
	client *resty.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().SetBaseURL(baseURL).SetTimeout(timeout)
	return &HTTPSource{client: c}
}

type punchWire struct {
	EmployeeID   string     `json:"employee_id"`
	In           *time.Time `json:"in"`
	Out          *time.Time `json:"out"`
	WorkingHours *float64   `json:"working_hours"`
}

// FetchAttendance resolves one day's punches for the given external
// employee ids in a single batched request.
func (s *HTTPSource) FetchAttendance(ctx context.Context, date time.Time, employeeIDs []string) (map[string]Record, error) {
	var wire []punchWire
	res, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("date", date.Format("2006-01-02")).
		SetBody(map[string]any{"employee_ids": employeeIDs}).
		SetResult(&wire).
		Post("/api/attendance/batch")
	if err != nil {
		return nil, fmt.Errorf("fetch attendance batch: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("attendance batch endpoint returned %s", res.Status())
	}

	out := make(map[string]Record, len(wire))
	for _, p := range wire {
		out[p.EmployeeID] = Record{In: p.In, Out: p.Out, WorkingHours: p.WorkingHours}
	}
	return out, nil
}
