package core

import "sort"

// RoleBuckets are the derived role sets, each ordered by ascending uid.
// A uid appears in at most one of HostUIDs/AudienceUIDs; ARAdminUIDs is
// independent.
type RoleBuckets struct {
	HostUIDs     []UID
	AudienceUIDs []UID
	ARAdminUIDs  []UID
}

// Classify derives role buckets from a roster snapshot, the raise-hand table
// and the current active uid set. It is pure: identical inputs always yield
// identical buckets, so it is safe to run on every roster tick.
func Classify(roster Roster, raiseHand RaiseHandTable, activeUIDs []UID) RoleBuckets {
	active := make(map[UID]struct{}, len(activeUIDs))
	for _, uid := range activeUIDs {
		active[uid] = struct{}{}
	}

	var buckets RoleBuckets
	for uid, entry := range roster {
		if !entry.Online {
			continue
		}
		_, isActive := active[uid]
		raise, hasRaise := raiseHand[uid]

		switch {
		case (entry.Kind == KindRTC || entry.Kind == KindLive) && isActive &&
			(!hasRaise || raise.Role == RaiseRoleHost):
			buckets.HostUIDs = append(buckets.HostUIDs, uid)
		case (entry.Kind == KindRTC || entry.Kind == KindLive) &&
			hasRaise && raise.Role == RaiseRoleAudience:
			// Audience membership does not require being on stage.
			buckets.AudienceUIDs = append(buckets.AudienceUIDs, uid)
		}

		// The negated role check mirrors the shipped behavior; confirm with
		// product before changing it.
		if entry.Kind == KindNone && isActive && raise.Role != RaiseRoleARAdmin {
			buckets.ARAdminUIDs = append(buckets.ARAdminUIDs, uid)
		}
	}

	sortUIDs(buckets.HostUIDs)
	sortUIDs(buckets.AudienceUIDs)
	sortUIDs(buckets.ARAdminUIDs)
	return buckets
}

func sortUIDs(uids []UID) {
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
}

// Classifier keeps the latest derived buckets and active-set snapshot for a
// session. It is written only by the session's scheduler goroutine.
type Classifier struct {
	buckets RoleBuckets
	active  []UID
}

// NewClassifier returns a classifier with empty buckets.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Update recomputes the buckets from fresh inputs, replacing the previous
// snapshot wholesale.
func (c *Classifier) Update(roster Roster, raiseHand RaiseHandTable, activeUIDs []UID) RoleBuckets {
	c.buckets = Classify(roster, raiseHand, activeUIDs)
	c.active = append(c.active[:0:0], activeUIDs...)
	return c.buckets
}

// RemoveUID strips a uid from every bucket and from the active-set snapshot
// immediately, without waiting for the next roster recomputation. Used when a
// participant is banned or force-disconnected.
func (c *Classifier) RemoveUID(uid UID) {
	c.buckets.HostUIDs = deleteUID(c.buckets.HostUIDs, uid)
	c.buckets.AudienceUIDs = deleteUID(c.buckets.AudienceUIDs, uid)
	c.buckets.ARAdminUIDs = deleteUID(c.buckets.ARAdminUIDs, uid)
	c.active = deleteUID(c.active, uid)
}

// Buckets returns the latest derived buckets.
func (c *Classifier) Buckets() RoleBuckets {
	return c.buckets
}

// ActiveUIDs returns the latest active-set snapshot.
func (c *Classifier) ActiveUIDs() []UID {
	return c.active
}

// IsHostUID reports whether uid is currently in the host bucket.
func (c *Classifier) IsHostUID(uid UID) bool {
	for _, h := range c.buckets.HostUIDs {
		if h == uid {
			return true
		}
	}
	return false
}

func deleteUID(uids []UID, uid UID) []UID {
	out := uids[:0]
	for _, u := range uids {
		if u != uid {
			out = append(out, u)
		}
	}
	return out
}
