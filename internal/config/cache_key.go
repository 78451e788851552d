package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentActiveExamKey returns the cache key guarding a student's single active session
func (r *CacheKeyStruct) StudentActiveExamKey(studentID string) string {
	return fmt.Sprintf("student:%s:active_exam", studentID)
}

// RateLimitKey returns the counter key for a client within one window
func (r *CacheKeyStruct) RateLimitKey(clientIP string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", clientIP, window)
}

// RevokedTokenKey marks a logged-out token by its JTI
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("revoked_token:%s", jti)
}

// ExamMonitorChannel is the Pub/Sub channel carrying live session activity
// of one exam
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
