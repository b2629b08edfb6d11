package hris

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/adelabdelgawad/meal-request-backend/internal/domain"
)

// HTTPSource is the concrete Source wired against the external HRIS's REST
// feed: new client, SetResult into a wire struct, check res.IsError.
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

type snapshotWire struct {
	Employees             []domain.Employee            `json:"employees"`
	Departments           []domain.Department          `json:"departments"`
	DepartmentParentLinks map[string]string             `json:"department_parent_links"`
	SecurityUsers         []domain.SecurityUser         `json:"security_users"`
	Assignments           []domain.HRISAssignment       `json:"assignments"`
}

// FetchSnapshot pulls the full employee/department/user/assignment feed in
// one call — the external system is expected to expose a single
// reconciliation-snapshot endpoint rather than four separate paginated ones.
func (s *HTTPSource) FetchSnapshot(ctx context.Context) (*domain.HRISSnapshot, error) {
	var wire snapshotWire
	res, err := s.client.R().SetContext(ctx).SetResult(&wire).Get("/api/hris/snapshot")
	if err != nil {
		return nil, fmt.Errorf("fetch hris snapshot: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("hris snapshot endpoint returned %s", res.Status())
	}
	return &domain.HRISSnapshot{
		Employees:             wire.Employees,
		Departments:           wire.Departments,
		DepartmentParentLinks: wire.DepartmentParentLinks,
		SecurityUsers:         wire.SecurityUsers,
		Assignments:           wire.Assignments,
	}, nil
}
