package core

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "$1.00", true},
		{"12.34", "$12.34", true},
		{"0", "$0.00", true},
		{"0.005", "$0.01", true},
		{"-1", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Format() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got.Format(), err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyAddIsExact(t *testing.T) {
	total := Zero()
	for i := 0; i < 10; i++ {
		total = total.Add(NewMoney(0.1))
	}
	if !total.Equal(NewMoney(1)) {
		t.Fatalf("expected exactly 1, got %s", total.String())
	}
}

func TestMoneyUnmarshal(t *testing.T) {
	var out struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "3.10", "c": null}`), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.A.Format() != "$12.50" || out.B.Format() != "$3.10" || out.C.Format() != "$0.00" {
		t.Fatalf("unexpected values: %s %s %s", out.A.Format(), out.B.Format(), out.C.Format())
	}
}
