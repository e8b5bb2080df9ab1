package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

const eps = 1e-9

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []OrderLine
		taxRate  float64
		discount float64
		want     Totals
		wantErr  error
	}{
		{
			name:    "burger scenario",
			items:   []OrderLine{{MenuItemID: "burger", UnitPrice: 10, Quantity: 2, LineTotal: 20}},
			taxRate: 10,
			want:    Totals{Subtotal: 20, Tax: 2, Total: 22},
		},
		{
			name: "several lines with discount",
			items: []OrderLine{
				{UnitPrice: 4.2, Quantity: 3, LineTotal: LineTotal(4.2, 3)},
				{UnitPrice: 0.1, Quantity: 7, LineTotal: LineTotal(0.1, 7)},
			},
			taxRate:  8.5,
			discount: 1.5,
			want:     Totals{Subtotal: 13.3, Tax: 1.1305, Discount: 1.5, Total: 12.9305},
		},
		{
			name:    "zero tax",
			items:   []OrderLine{{UnitPrice: 3, Quantity: 1, LineTotal: 3}},
			taxRate: 0,
			want:    Totals{Subtotal: 3, Total: 3},
		},
		{
			name:    "negative tax rate",
			items:   []OrderLine{{UnitPrice: 3, Quantity: 1, LineTotal: 3}},
			taxRate: -1,
			wantErr: ErrInvalidTotals,
		},
		{
			name:     "discount above amount",
			items:    []OrderLine{{UnitPrice: 3, Quantity: 1, LineTotal: 3}},
			discount: 5,
			wantErr:  ErrInvalidTotals,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(tt.items, tt.taxRate, tt.discount)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ComputeTotals() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ComputeTotals() unexpected error: %v", err)
			}
			if math.Abs(got.Subtotal-tt.want.Subtotal) > eps || math.Abs(got.Tax-tt.want.Tax) > eps ||
				math.Abs(got.Discount-tt.want.Discount) > eps || math.Abs(got.Total-tt.want.Total) > eps {
				t.Errorf("ComputeTotals() = %+v, want %+v", got, tt.want)
			}

			var sum float64
			for _, item := range tt.items {
				sum += item.LineTotal
			}
			if math.Abs(got.Subtotal-sum) > 1e-6 {
				t.Errorf("subtotal %v != sum of line totals %v", got.Subtotal, sum)
			}
			if math.Abs(got.Total-(got.Subtotal+got.Tax-got.Discount)) > 1e-6 {
				t.Errorf("total %v != subtotal + tax - discount", got.Total)
			}
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPlaced, StatusConfirmed, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPlaced, StatusReady, true},
		{StatusPlaced, StatusCancelled, true},
		{StatusReady, StatusCancelled, true},
		{StatusReady, StatusPlaced, false},
		{StatusPlaced, StatusPlaced, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCancelled, StatusPlaced, false},
		{StatusPlaced, Status("served"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			o := &Order{Status: tt.from}
			if got := o.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionPatchCompletedMarksPaid(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &Order{ID: "o1", Status: StatusReady, PaymentStatus: PaymentPending, Items: []OrderLine{{MenuItemID: "x", Quantity: 1}}}

	patch, err := o.TransitionPatch(StatusCompleted, now)
	if err != nil {
		t.Fatalf("TransitionPatch() error: %v", err)
	}
	if patch.ExpectedStatus == nil || *patch.ExpectedStatus != StatusReady {
		t.Fatalf("expected status precondition ready, got %v", patch.ExpectedStatus)
	}

	updated := o.Apply(patch)
	if updated.Status != StatusCompleted || updated.PaymentStatus != PaymentPaid {
		t.Errorf("got status=%s payment=%s", updated.Status, updated.PaymentStatus)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, now)
	}
	if o.Status != StatusReady {
		t.Errorf("Apply mutated the original order")
	}
	if len(updated.Items) != 1 {
		t.Errorf("items changed by patch")
	}
}

func TestTransitionPatchRejects(t *testing.T) {
	o := &Order{Status: StatusCancelled}
	if _, err := o.TransitionPatch(StatusPlaced, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("got %v, want ErrInvalidTransition", err)
	}
	if _, err := o.TransitionPatch("bogus", time.Now()); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("got %v, want ErrInvalidStatus", err)
	}
}

func TestNewOrderDefaults(t *testing.T) {
	now := time.Now()
	dineIn := NewOrder("1", "r", "ORD_1", "t4", "s", "", nil, Totals{}, "", now)
	if dineIn.Type != OrderTypeDineIn || dineIn.Status != StatusPlaced || dineIn.PaymentStatus != PaymentPending {
		t.Errorf("unexpected defaults: %+v", dineIn)
	}
	takeout := NewOrder("2", "r", "ORD_2", "", "s", "", nil, Totals{}, "", now)
	if takeout.Type != OrderTypeTakeout {
		t.Errorf("Type = %s, want takeout", takeout.Type)
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	got := GenerateOrderNumber(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), 7)
	if got != "ORD_20261016_007" {
		t.Errorf("GenerateOrderNumber() = %s", got)
	}
}
