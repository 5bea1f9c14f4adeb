package signal

import "testing"

func TestExtractCoin(t *testing.T) {
	cases := []struct {
		content string
		want    string
	}{
		{"BTC Entry: 110547-110328 SL: 108310", "BTC"},
		{"ETHUSDT Entry: 3000", "ETH"},
		{"long sol here, target 200", "SOL"},
		{"gm, market looks heavy", ""},
		{"FOO Entry: 1.23", ""},
	}
	for _, tc := range cases {
		if got := ExtractCoin(tc.content); got != tc.want {
			t.Errorf("ExtractCoin(%q) = %q, want %q", tc.content, got, tc.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	if got := Jaccard("BTC Entry: 100 SL: 90", "BTC Entry: 100 SL: 90"); got != 1 {
		t.Errorf("identical texts = %v, want 1", got)
	}
	if got := Jaccard("BTC Entry: 100", "ETH totally different words"); got > 0.2 {
		t.Errorf("unrelated texts = %v, want low", got)
	}
	if got := Jaccard("", "BTC"); got != 0 {
		t.Errorf("empty text = %v, want 0", got)
	}
}
