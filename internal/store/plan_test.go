package store

import "testing"

func TestSeededPlans(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	plans, err := ps.List()
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d seeded plans, want 2", len(plans))
	}

	byName := make(map[string]int64, len(plans))
	for _, p := range plans {
		byName[p.Name] = p.PriceCents
	}
	if byName["Premium Monthly"] != 999 {
		t.Errorf("monthly price = %d, want 999", byName["Premium Monthly"])
	}
	if byName["Premium Annual"] != 9999 {
		t.Errorf("annual price = %d, want 9999", byName["Premium Annual"])
	}
}

func TestPlanGetByID(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	plans, err := ps.List()
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}

	got, err := ps.GetByID(plans[0].ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if got == nil || got.Name != plans[0].Name {
		t.Fatalf("got = %+v, want %+v", got, plans[0])
	}

	missing, err := ps.GetByID(9999)
	if err != nil {
		t.Fatalf("get missing plan: %v", err)
	}
	if missing != nil {
		t.Fatalf("got = %+v, want nil", missing)
	}
}
