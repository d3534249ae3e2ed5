package normalization

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "whitespace_only",
			in:   "   \n  ",
			want: "",
		},
		{
			name: "single_item",
			in:   "Fever for 3 days",
			want: "- Fever for 3 days",
		},
		{
			name: "flat_dash_delimited",
			in:   "Fever for 3 days - Cough - Sore throat",
			want: "- Fever for 3 days\n- Cough\n- Sore throat",
		},
		{
			name: "period_dash_seam",
			in:   "BP 130/85. - Pulse 72",
			want: "- BP 130/85\n- Pulse 72",
		},
		{
			name: "already_bulleted_passthrough",
			in:   "- Fever for 3 days\n- Cough",
			want: "- Fever for 3 days\n- Cough",
		},
		{
			name: "star_bullets_passthrough",
			in:   "* Fever\n* Cough",
			want: "* Fever\n* Cough",
		},
		{
			name: "hyphenated_word_not_split",
			in:   "Prescribed co-amoxiclav for 5 days",
			want: "- Prescribed co-amoxiclav for 5 days",
		},
		{
			name: "numeric_range_not_split",
			in:   "Paracetamol 10 - 20 mg as needed",
			want: "- Paracetamol 10 - 20 mg as needed",
		},
		{
			name: "dosage_with_trailing_seam",
			in:   "Paracetamol 650mg TID - Rest and fluids - Follow-up in 3 days",
			want: "- Paracetamol 650mg TID\n- Rest and fluids\n- Follow-up in 3 days",
		},
		{
			name: "multiline_flat_text",
			in:   "Fever for 3 days\nCough with sputum",
			want: "- Fever for 3 days\n- Cough with sputum",
		},
		{
			name: "trailing_period_trimmed",
			in:   "Acute pharyngitis.",
			want: "- Acute pharyngitis",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.in)
			if got != tc.want {
				t.Fatalf("Normalize(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"Fever for 3 days - Cough - Sore throat",
		"- Already a bullet\n- Another bullet",
		"Paracetamol 10 - 20 mg as needed",
		"Prescribed co-amoxiclav - review in 1 week",
		"BP 130/85. - Pulse 72. - Temp 98.6F",
		"plain sentence with no seams",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}
