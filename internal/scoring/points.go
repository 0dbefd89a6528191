// Package scoring holds the point award rules for diner actions and the
// date arithmetic of leaderboard periods. Everything here is pure: callers
// load state, apply a rule and persist the outcome.
package scoring

import (
	"strings"
	"unicode/utf8"
)

// Point values.
const (
	DefaultVisitPoints int64 = 10

	ReviewBasePoints      int64 = 25
	ReviewLongTextBonus   int64 = 10
	ReviewPhotoBonus      int64 = 15
	ReviewMaxPoints             = ReviewBasePoints + ReviewLongTextBonus + ReviewPhotoBonus
	reviewLongTextMinimum       = 50 // text must be strictly longer

	StreakBonusPoints int64 = 15
	StreakBonusEvery        = 3

	ProfileCompletionBonus int64 = 25
	profileCheckWeight           = 25
	bioMinimum                   = 10 // bio must be strictly longer
)

// MinRating and MaxRating bound a review's star rating.
const (
	MinRating = 1
	MaxRating = 5
)

// ValidRating reports whether rating is within MinRating..MaxRating.
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// ReviewPoints returns the award for a review: the base, plus a bonus for
// text longer than 50 characters, plus a bonus when a photo is attached.
func ReviewPoints(text string, photoURLs []string) int64 {
	points := ReviewBasePoints
	if utf8.RuneCountInString(text) > reviewLongTextMinimum {
		points += ReviewLongTextBonus
	}
	if CountPhotos(photoURLs) > 0 {
		points += ReviewPhotoBonus
	}
	return points
}

// CountPhotos counts the non-blank photo URLs.
func CountPhotos(photoURLs []string) int {
	n := 0
	for _, u := range photoURLs {
		if strings.TrimSpace(u) != "" {
			n++
		}
	}
	return n
}

// VisitPoints returns the flat award for a visit. A non-positive base falls
// back to DefaultVisitPoints.
func VisitPoints(base int64) int64 {
	if base <= 0 {
		return DefaultVisitPoints
	}
	return base
}

// ProfileFields are the profile attributes that count towards completion.
type ProfileFields struct {
	PhotoURL          string
	Bio               string
	DietaryPreference string
	Location          string
}

// CompletionPercentage sums four independent 25 point checks.
func CompletionPercentage(p ProfileFields) int {
	pct := 0
	if strings.TrimSpace(p.PhotoURL) != "" {
		pct += profileCheckWeight
	}
	if utf8.RuneCountInString(strings.TrimSpace(p.Bio)) > bioMinimum {
		pct += profileCheckWeight
	}
	if strings.TrimSpace(p.DietaryPreference) != "" {
		pct += profileCheckWeight
	}
	if strings.TrimSpace(p.Location) != "" {
		pct += profileCheckWeight
	}
	return pct
}

// CompletionBonus returns the one-time bonus owed for a profile at pct
// percent completion. claim is true when the bonus must be marked claimed.
func CompletionBonus(pct int, alreadyClaimed bool) (points int64, claim bool) {
	if pct < 100 || alreadyClaimed {
		return 0, false
	}
	return ProfileCompletionBonus, true
}
