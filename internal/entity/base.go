package entity

import (
	"fmt"
	"sort"
	"time"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// PairKey builds the normalized key for an unordered participant pair,
// optionally scoped by a property reference.
// Format: {min(userA,userB)}:{max(userA,userB)}[#{propertyId}]
// Uses ":" as separator between userIds to support userIds containing "_"
func PairKey(userA, userB, propertyId string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	key := fmt.Sprintf("%s:%s", users[0], users[1])
	if propertyId != "" {
		key = fmt.Sprintf("%s#%s", key, propertyId)
	}
	return key
}
