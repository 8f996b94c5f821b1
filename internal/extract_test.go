package internal

import (
	"encoding/json"
	"testing"
)

func TestFirstFence_Tagged(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		want string
	}{
		{"tagged", "intro\n```afl\nBuy = 1;\n```\n", "afl", "Buy = 1;"},
		{"case insensitive tag", "```AFL\nBuy = 1;\n```", "afl", "Buy = 1;"},
		{"other language ignored", "```python\nx = 1\n```", "afl", ""},
		{"first of several", "```afl\nBuy = 1;\n```\n```afl\nBuy = 2;\n```", "afl", "Buy = 1;"},
		{"empty block skipped", "```afl\n\n```\n```afl\nSell = 1;\n```", "afl", "Sell = 1;"},
		{"unclosed", "```afl\nBuy = 1;", "afl", ""},
		{"no fence", "plain text", "afl", ""},
		{"indented fence", "steps:\n  ```afl\n  Buy = 1;\n  ```", "afl", "Buy = 1;"},
		{"inline fence in prose", "use ```afl``` tags:\n```afl\nBuy = 1;\n```", "afl", "Buy = 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := firstFence(taggedFencePattern(tt.lang), tt.text); got != tt.want {
				t.Errorf("firstFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstFence_Any(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"untagged", "```\nBuy = 1;\n```", "Buy = 1;"},
		{"tagged counts too", "```c\nint x;\n```", "int x;"},
		{"crlf", "```\r\nBuy = 1;\r\n```", "Buy = 1;"},
		{"unclosed", "```\nBuy", ""},
		{"inline fence in prose", "Wrap it in ```code``` like so:\n```python\nprint(1)\n```", "print(1)"},
		{"fence mid line", "text ```\nBuy = 1;\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := firstFence(anyFencePattern, tt.text); got != tt.want {
				t.Errorf("firstFence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractCodeField(t *testing.T) {
	fields := []string{"code", "afl_code"}
	tests := []struct {
		name   string
		output string
		want   string
		ok     bool
	}{
		{"code field", `{"code":"Buy = 1;"}`, "Buy = 1;", true},
		{"second field", `{"afl_code":"Sell = 1;"}`, "Sell = 1;", true},
		{"field order wins", `{"afl_code":"B","code":"A"}`, "A", true},
		{"trimmed", `{"code":"  Buy = 1;\n"}`, "Buy = 1;", true},
		{"blank code", `{"code":"   "}`, "", false},
		{"non string", `{"code":42}`, "", false},
		{"array", `[{"code":"x"}]`, "", false},
		{"invalid json", `{"code":`, "", false},
		{"double encoded", `"{\"code\":\"Buy = 9;\"}"`, "Buy = 9;", true},
		{"plain string", `"hello"`, "", false},
		{"empty", ``, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCodeField(json.RawMessage(tt.output), fields)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ExtractCodeField() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
