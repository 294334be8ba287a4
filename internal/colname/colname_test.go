package colname

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PATIENT_ID", "patient_id"},
		{"Patient ID", "patient_id"},
		{"patient.id", "patient_id"},
		{"patient-id", "patient_id"},
		{"  ER  Status  ", "er_status"},
		{"__OS_MONTHS__", "os_months"},
		{"a._- \tb", "a_b"},
		{"age_at_diagnosis", "age_at_diagnosis"},
		{"", ""},
		{"___", ""},
		{"Cellularity", "cellularity"},
		{"TUMOR SIZE", "tumor_size"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_ComposedAndDecomposedEqual(t *testing.T) {
	composed := "Tama\u00f1o"
	decomposed := "Taman\u0303o"
	if Normalize(composed) != Normalize(decomposed) {
		t.Errorf("expected %q and %q to normalize equally, got %q and %q",
			composed, decomposed, Normalize(composed), Normalize(decomposed))
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	names := []string{"ER_STATUS", "er status", "Er.Status", "er-status"}
	first := make([]string, len(names))
	for i, n := range names {
		first[i] = Normalize(n)
	}
	// Reverse call order must not change results.
	for i := len(names) - 1; i >= 0; i-- {
		if got := Normalize(names[i]); got != first[i] {
			t.Errorf("Normalize(%q) changed between calls: %q vs %q", names[i], first[i], got)
		}
	}
	for _, n := range names {
		if !Equal(n, "er_status") {
			t.Errorf("expected %q to equal er_status", n)
		}
	}
}
