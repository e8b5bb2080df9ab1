package firestore

import (
	"errors"
	"reflect"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/YelzhanWeb/tableorders/internal/domain"
)

func TestPlanQuery(t *testing.T) {
	many := make([]string, maxInValues+1)
	for i := range many {
		many[i] = string(rune('a' + i%26))
	}

	tests := []struct {
		name  string
		query domain.OrderQuery
		want  queryPlan
	}{
		{
			name:  "single table equality with statuses",
			query: domain.ActiveQuery("t1"),
			want: queryPlan{
				tableEq:  "t1",
				statusIn: []string{"placed", "confirmed", "preparing", "ready"},
			},
		},
		{
			name:  "several tables without statuses",
			query: domain.OrderQuery{TableIDs: []string{"t1", "t2"}, Limit: 10},
			want:  queryPlan{tableIn: []string{"t1", "t2"}, limit: 10},
		},
		{
			name:  "several tables and statuses filter tables locally",
			query: domain.OrderQuery{TableIDs: []string{"t1", "t2"}, Statuses: []domain.Status{domain.StatusReady}, Limit: 5},
			want:  queryPlan{statusIn: []string{"ready"}, clientFilter: true},
		},
		{
			name:  "too many tables",
			query: domain.OrderQuery{TableIDs: many, Newest: true},
			want:  queryPlan{newest: true, clientFilter: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := planQuery(tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("plan = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		code      codes.Code
		notFound  bool
		transient bool
	}{
		{codes.NotFound, true, false},
		{codes.Unavailable, false, true},
		{codes.DeadlineExceeded, false, true},
		{codes.ResourceExhausted, false, true},
		{codes.PermissionDenied, false, false},
		{codes.InvalidArgument, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			err := classify(status.Error(tt.code, "x"), "test")
			if got := errors.Is(err, domain.ErrOrderNotFound); got != tt.notFound {
				t.Errorf("not found = %v", got)
			}
			if got := errors.Is(err, domain.ErrTransient); got != tt.transient {
				t.Errorf("transient = %v", got)
			}
		})
	}
}
