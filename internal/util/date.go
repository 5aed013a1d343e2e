// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "time"

// Relative date buckets used to group chat listings.
const (
	BucketToday     = "TODAY"
	BucketThisWeek  = "THIS WEEK"
	BucketThisMonth = "THIS MONTH"
	BucketOlder     = "OLDER"
)

// DateBucket places t relative to now by elapsed time: under a day is
// today, under 7 days this week, under 30 days this month. Times in the
// future count as today.
func DateBucket(t, now time.Time) string {
	days := now.Sub(t).Hours() / 24
	switch {
	case days < 1:
		return BucketToday
	case days < 7:
		return BucketThisWeek
	case days < 30:
		return BucketThisMonth
	default:
		return BucketOlder
	}
}
