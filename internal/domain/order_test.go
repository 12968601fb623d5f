package domain

import "testing"

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
	}
	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPending:    {OrderStatusConfirmed: true, OrderStatusCancelled: true},
		OrderStatusConfirmed:  {OrderStatusProcessing: true, OrderStatusCancelled: true},
		OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
		OrderStatusShipped:    {OrderStatusDelivered: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestOrderStatus_CancelMatchesTransitions(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
	} {
		if s.CanCancel() != s.CanTransitionTo(OrderStatusCancelled) {
			t.Errorf("%s: CanCancel and CanTransitionTo(cancelled) disagree", s)
		}
	}
}

func TestOrderStatus_Predecessors(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   []OrderStatus
	}{
		{OrderStatusPending, nil},
		{OrderStatusConfirmed, []OrderStatus{OrderStatusPending}},
		{OrderStatusDelivered, []OrderStatus{OrderStatusShipped}},
		{OrderStatusCancelled, []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := tt.status.Predecessors()
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}
