package obs

import "testing"

func TestParseLevelRecognizesAllFourLevels(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"debug":     "DEBUG",
		"warn":      "WARN",
		"error":     "ERROR",
		"info":      "INFO",
		"":          "INFO",
		"gibberish": "INFO",
	}
	for input, want := range cases {
		if got := parseLevel(input).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}
