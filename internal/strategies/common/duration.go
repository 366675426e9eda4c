package common

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 策略配置里的时长字段。
// 字符串按 time.ParseDuration 解析（"30s"、"15m"），
// 裸数字按秒解释（允许小数），空值与 null 归零。
type Duration struct {
	time.Duration
}

// parseScalar 统一处理标量文本；quoted 表示来源是字符串字面量。
func (d *Duration) parseScalar(text string, quoted bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		d.Duration = 0
		return nil
	}

	if quoted {
		v, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("duration %q: %w", text, err)
		}
		d.Duration = v
		return nil
	}

	secs, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("duration seconds %q: %w", text, err)
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got kind=%d value=%q", node.Kind, node.Value)
	}
	return d.parseScalar(node.Value, node.Tag == "!!str")
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "" || raw == "null" {
		d.Duration = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return d.parseScalar(s, true)
	}
	return d.parseScalar(raw, false)
}
