package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionSnapshotKey returns the cache key for a student's in-progress answer
// snapshot for one test attempt. Keyed per student+test so concurrent attempts
// at different tests never collide.
func (r *CacheKeyStruct) SessionSnapshotKey(studentID, testID string) string {
	return fmt.Sprintf("student:%s:test:%s:snapshot", studentID, testID)
}

var CacheKey = NewCacheKeyStruct()
