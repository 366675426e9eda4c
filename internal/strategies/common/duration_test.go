package common

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_YAML(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"15m"`, 15 * time.Minute},
		{`"900s"`, 900 * time.Second},
		{`30`, 30 * time.Second},  // 裸数字按秒
		{`1.5`, 1500 * time.Millisecond},
		{`""`, 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := yaml.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("yaml %s: %v", tc.in, err)
		}
		if d.Duration != tc.want {
			t.Fatalf("yaml %s got=%v want=%v", tc.in, d.Duration, tc.want)
		}
	}
}

func TestDuration_YAMLInvalid(t *testing.T) {
	var d Duration
	if err := yaml.Unmarshal([]byte(`"abc"`), &d); err == nil {
		t.Fatalf("invalid duration string must error")
	}
}

func TestDuration_JSON(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`"30s"`, 30 * time.Second},
		{`60`, 60 * time.Second},
		{`null`, 0},
	}
	for _, tc := range cases {
		var d Duration
		if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
			t.Fatalf("json %s: %v", tc.in, err)
		}
		if d.Duration != tc.want {
			t.Fatalf("json %s got=%v want=%v", tc.in, d.Duration, tc.want)
		}
	}
}
