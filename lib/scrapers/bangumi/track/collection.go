package track

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CollectionStatus is the subject-level status code the service stores.
type CollectionStatus int

const (
	StatusUnset   CollectionStatus = 0
	StatusWish    CollectionStatus = 1
	StatusCollect CollectionStatus = 2
	StatusDoing   CollectionStatus = 3
	StatusOnHold  CollectionStatus = 4
	StatusDropped CollectionStatus = 5
)

var statusSlugs = map[CollectionStatus]string{
	StatusWish:    "wish",
	StatusCollect: "collect",
	StatusDoing:   "do",
	StatusOnHold:  "on_hold",
	StatusDropped: "dropped",
}

// String returns the slug the service uses for the status in listing
// urls, "" for StatusUnset.
func (s CollectionStatus) String() string {
	return statusSlugs[s]
}

func (s CollectionStatus) valid() bool {
	return s >= StatusWish && s <= StatusDropped
}

// ParseCollectionStatus resolves a status slug back to its code.
func ParseCollectionStatus(slug string) (CollectionStatus, error) {
	for status, s := range statusSlugs {
		if s == slug {
			return status, nil
		}
	}
	return StatusUnset, fmt.Errorf("unknown collection status %q", slug)
}

// EpStatus is an episode-level collection status. EpWatchedUpTo is a
// client-side directive rather than a stored remote state: submitting it
// expands into a batch of EpWatched writes over the parent's episode
// order.
type EpStatus string

const (
	EpUnset       EpStatus = ""
	EpWatched     EpStatus = "watched"
	EpWatchedUpTo EpStatus = "watched_up_to"
	EpQueue       EpStatus = "queue"
	EpDrop        EpStatus = "drop"
)

func (s EpStatus) valid() bool {
	switch s {
	case EpWatched, EpWatchedUpTo, EpQueue, EpDrop:
		return true
	}
	return false
}

// Collection is the closed set of collection kinds SetCollection and
// RemoveCollection accept.
type Collection interface {
	collection()
}

func (*SubjectCollection) collection() {}
func (*EpisodeCollection) collection() {}

var errNoClient = fmt.Errorf("no session attached, fetch this collection through a client first")

// SubjectCollection is the viewer's own record for one subject. A
// subject outside the collection yields an empty record with CStatus
// StatusUnset and no EpColls.
type SubjectCollection struct {
	Subject *Subject
	CStatus CollectionStatus
	// Rating is 0 when unrated, otherwise 1 to 10.
	Rating  int
	Tags    []string
	Comment string
	// NWatchedEps is the server-computed watched counter. It is only
	// ever overwritten from a server response after a confirmed write,
	// never incremented locally.
	NWatchedEps int
	// EpColls, when present, is index-aligned with Subject.Eps.
	EpColls []*EpisodeCollection

	client Client
}

// EpisodeCollection is the viewer's own record for one episode.
type EpisodeCollection struct {
	Episode *Episode
	CStatus EpStatus

	subColl *SubjectCollection
	client  Client
}

// SubjectCollection returns the containing subject collection, nil for
// standalone fetches.
func (ec *EpisodeCollection) SubjectCollection() *SubjectCollection {
	return ec.subColl
}

// DummySubjectCollection is the listing projection of a subject
// collection: subject basics and the status it was listed under, no
// episode data.
type DummySubjectCollection struct {
	SubjectId string
	Title     string
	ChTitle   string
	CStatus   CollectionStatus

	client Client
}

// Full upgrades the dummy into a full SubjectCollection with a normal
// fetch.
func (dc *DummySubjectCollection) Full(ctx context.Context) (*SubjectCollection, error) {
	if dc.client.Core == nil {
		return nil, errNoClient
	}
	return dc.client.SubjectCollection(ctx, dc.SubjectId)
}

var epLabelRegex = regexp.MustCompile(`([a-zA-Z]*)([0-9]+)`)

// FindEpisodeCollection looks an episode collection up by episode id
// ("46037") or by sort label ("EP15", "SP1"). It returns nil when
// nothing matches and an error when epInfo fits neither form.
func (sc *SubjectCollection) FindEpisodeCollection(epInfo string) (*EpisodeCollection, error) {
	if isDigits(epInfo) {
		for _, ec := range sc.EpColls {
			if ec.Episode.Id == epInfo {
				return ec, nil
			}
		}
		return nil, nil
	}

	groups := epLabelRegex.FindStringSubmatch(epInfo)
	if groups == nil {
		return nil, fmt.Errorf("unrecognized episode reference %q", epInfo)
	}
	num, err := strconv.Atoi(groups[2])
	if err != nil {
		return nil, fmt.Errorf("unrecognized episode reference %q", epInfo)
	}
	epType := strings.ToUpper(groups[1])
	for _, ec := range sc.EpColls {
		if ec.Episode.Num == num && ec.Episode.Type == epType {
			return ec, nil
		}
	}
	return nil, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// prefixThrough returns the episode collections from the start up to and
// including target, in stored order.
func (sc *SubjectCollection) prefixThrough(target *EpisodeCollection) ([]*EpisodeCollection, error) {
	var prefix []*EpisodeCollection
	for _, ec := range sc.EpColls {
		prefix = append(prefix, ec)
		if ec == target {
			return prefix, nil
		}
	}
	return nil, fmt.Errorf("episode %s is not part of this collection", target.Episode.Id)
}

// Sync pushes status, rating, tags and comment. Episode statuses and the
// watched counter are not pushed, use the episode-level calls and
// SyncWatchedCount for those.
func (sc *SubjectCollection) Sync(ctx context.Context) (bool, error) {
	if sc.client.Core == nil {
		return false, errNoClient
	}
	return sc.client.SetSubjectCollection(ctx, sc)
}

// Remove drops the record on the service and clears the local status.
func (sc *SubjectCollection) Remove(ctx context.Context) (bool, error) {
	if sc.client.Core == nil {
		return false, errNoClient
	}
	return sc.client.RemoveCollection(ctx, sc)
}

// SyncWatchedCount pushes NWatchedEps, which Sync does not.
func (sc *SubjectCollection) SyncWatchedCount(ctx context.Context) (bool, error) {
	if sc.client.Core == nil {
		return false, errNoClient
	}
	return sc.client.SetWatchedCount(ctx, sc)
}

// WatchedUpTo marks every episode up to and including the referenced one
// as watched in one batch. epInfo accepts the same forms as
// FindEpisodeCollection.
func (sc *SubjectCollection) WatchedUpTo(ctx context.Context, epInfo string) (bool, error) {
	if sc.client.Core == nil {
		return false, errNoClient
	}
	target, err := sc.FindEpisodeCollection(epInfo)
	if err != nil {
		return false, err
	}
	if target == nil {
		return false, fmt.Errorf("episode %q is not part of this collection", epInfo)
	}
	prefix, err := sc.prefixThrough(target)
	if err != nil {
		return false, err
	}
	return sc.client.setWatchedBatch(ctx, prefix)
}

// SetWatched marks the given episode collections watched in one batch.
// Every entry must belong to this collection.
func (sc *SubjectCollection) SetWatched(ctx context.Context, epColls []*EpisodeCollection) (bool, error) {
	if sc.client.Core == nil {
		return false, errNoClient
	}
	for _, ec := range epColls {
		if ec.subColl != sc {
			return false, fmt.Errorf("episode %s does not belong to this collection", ec.Episode.Id)
		}
	}
	return sc.client.setWatchedBatch(ctx, epColls)
}

// Sync pushes the episode status.
func (ec *EpisodeCollection) Sync(ctx context.Context) (bool, error) {
	if ec.client.Core == nil {
		return false, errNoClient
	}
	return ec.client.SetEpisodeCollection(ctx, ec)
}

// Remove drops the record on the service and clears the local status.
func (ec *EpisodeCollection) Remove(ctx context.Context) (bool, error) {
	if ec.client.Core == nil {
		return false, errNoClient
	}
	return ec.client.RemoveCollection(ctx, ec)
}

// WatchedUpTo marks every episode up to and including this one as
// watched in one batch.
func (ec *EpisodeCollection) WatchedUpTo(ctx context.Context) (bool, error) {
	if ec.client.Core == nil {
		return false, errNoClient
	}
	if ec.subColl == nil {
		return false, fmt.Errorf("the watched_up_to status needs the containing subject collection")
	}
	prefix, err := ec.subColl.prefixThrough(ec)
	if err != nil {
		return false, err
	}
	return ec.client.setWatchedBatch(ctx, prefix)
}
