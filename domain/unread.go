package domain

import "maps"

// UnreadCounts maps a participant to the number of messages they have not seen.
// An absent key counts as 0.
type UnreadCounts map[string]int

func (u UnreadCounts) Get(userID string) int {
	if n := u[userID]; n > 0 {
		return n
	}
	return 0
}

func (u UnreadCounts) Clone() UnreadCounts {
	out := make(UnreadCounts, len(u))
	maps.Copy(out, u)
	return out
}

// AfterMessageSent sets the sender to 0 and increments every other participant.
// Keys outside participants are left untouched.
func (u UnreadCounts) AfterMessageSent(senderID string, participants []string) UnreadCounts {
	out := u.Clone()
	for _, p := range participants {
		if p == senderID {
			continue
		}
		out[p] = out.Get(p) + 1
	}
	out[senderID] = 0
	return out
}

// Seeded adds a 0 entry for every participant without one.
func (u UnreadCounts) Seeded(participants []string) UnreadCounts {
	out := u.Clone()
	for _, p := range participants {
		if _, ok := out[p]; !ok {
			out[p] = 0
		}
	}
	return out
}

// AfterReset clears the viewer counter and reports whether it was positive.
func (u UnreadCounts) AfterReset(viewerID string) (UnreadCounts, bool) {
	if u.Get(viewerID) == 0 {
		return u.Clone(), false
	}
	out := u.Clone()
	out[viewerID] = 0
	return out, true
}

// CounterChange is returned by every counter operation so callers can spot
// unexpected jumps when writes race.
type CounterChange struct {
	Previous UnreadCounts
	Current  UnreadCounts
	Written  bool
}

// Delta is how much the counter of userID moved.
func (c CounterChange) Delta(userID string) int {
	return c.Current.Get(userID) - c.Previous.Get(userID)
}
