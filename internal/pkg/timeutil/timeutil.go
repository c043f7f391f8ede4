package timeutil

import "time"

func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

func ToUnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}
