package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arvalo/arvalo/internal/ctxkeys"
	"github.com/mitchellh/mapstructure"
)

var errUserRequired = errors.New("user_id is required")

// decodeArgs 把模型给出的参数解码到结构体，按 json 标签匹配，允许弱类型转换
func decodeArgs(params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// userID context 优先，参数兜底
func userID(ctx context.Context, fromArgs string) (string, error) {
	if id, ok := ctxkeys.UserID(ctx); ok {
		return id, nil
	}
	if id := strings.TrimSpace(fromArgs); id != "" {
		return id, nil
	}
	return "", errUserRequired
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006", "2006/01/02"}

// parseDate 接受 RFC3339 与常见日期格式，空串返回零值
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
