package model

import (
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// LocalTime 在 JSON 序列化时输出 "YYYY-MM-DD HH:MM:SS" 格式。
type LocalTime time.Time

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).Format(timeFormat) + `"`), nil
}
