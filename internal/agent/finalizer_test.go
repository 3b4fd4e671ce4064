package agent

import "testing"

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"8", "8"},
		{"  8.  ", "8"},
		{"Final Answer: Down", "Down"},
		{"final answer: \"Re6\"", "Re6"},
		{"Answer: saint Petersburg.", "Saint Petersburg"},
		{"“Extremely.”", "Extremely"},
		{"`b, e`", "B, e"},
		{"e4", "e4"},
		{"3rd place", "3rd place"},
		{"right", "Right"},
		{"$89,706.00", "$89,706.00"},
		{"broccoli, celery, lettuce", "Broccoli, celery, lettuce"},
		{"The opposite of up is down, as everyone knows.", "The opposite of up is down, as everyone knows."},
		{"'a', 'b'", "'a', 'b'"},
		{"Washington D.C.", "Washington D.C."},
		{"U.S.", "U.S."},
		{"the U.S.", "The U.S."},
		{"St. Petersburg.", "St. Petersburg"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeAnswer(tt.in); got != tt.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAnswer_Idempotent(t *testing.T) {
	inputs := []string{
		"8",
		"Answer: \"answer: 42.\"",
		"  'Final Answer: tokyo.'  ",
		"The answer is 8 apples.",
		"St. Petersburg.",
		"\"\"",
		"...",
		"i don't know.",
	}
	for _, in := range inputs {
		once := NormalizeAnswer(in)
		if twice := NormalizeAnswer(once); twice != once {
			t.Errorf("NormalizeAnswer not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestIsBareValue(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"8", true},
		{"1,234.5", true},
		{"Paris", true},
		{"Saint Petersburg", true},
		{"the answer is eight", false},
		{"Mary and John have eight apples in total", false},
		{"Inf", true},
		{"Washington D.C.", true},
		{"Broccoli, celery, lettuce, peppers, spinach, zucchini", true},
		{"Sweet potatoes, fresh basil, plums", true},
		{"broccoli, celery, lettuce, peppers, spinach, zucchini", false},
		{"Eight apples, as far as I can tell from the text", false},
		{"Paris, France. Also Lyon, Marseille", false},
	}
	for _, tt := range tests {
		if got := isBareValue(tt.in); got != tt.want {
			t.Errorf("isBareValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
