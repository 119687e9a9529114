package track

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"bgmtrack/lib/scrapers/bangumi/extract"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// checkWrite reports whether the service accepted a write. Every write
// endpoint responds with the refreshed page, which renders the viewer's
// identity badge only when the session is still valid and the form was
// taken.
func checkWrite(res *resty.Response) bool {
	if res.StatusCode() != http.StatusOK {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return false
	}
	return extract.UserId(doc) != ""
}

// SetCollection submits a collection record, dispatching on its kind.
// The bool result is the service's verdict, an error means the request
// never completed.
func (c Client) SetCollection(ctx context.Context, coll Collection) (bool, error) {
	switch coll := coll.(type) {
	case *SubjectCollection:
		return c.SetSubjectCollection(ctx, coll)
	case *EpisodeCollection:
		return c.SetEpisodeCollection(ctx, coll)
	default:
		return false, fmt.Errorf("unsupported collection kind %T", coll)
	}
}

// SetSubjectCollection submits the subject record's status, rating, tags
// and comment.
func (c Client) SetSubjectCollection(ctx context.Context, sc *SubjectCollection) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:SetSubjectCollection")
	defer span.End()

	if sc == nil {
		return false, fmt.Errorf("no subject collection provided")
	}
	if sc.CStatus == StatusUnset {
		return false, fmt.Errorf("collection status not set, use RemoveCollection to remove a collection")
	}
	if !sc.CStatus.valid() {
		return false, fmt.Errorf("corrupted collection status %d", int(sc.CStatus))
	}

	rating := ""
	if sc.Rating != 0 {
		rating = strconv.Itoa(sc.Rating)
	}
	res, err := c.Core.PostForm(
		ctx,
		fmt.Sprintf("/subject/%s/interest/update?gh=%s", sc.Subject.Id, c.Core.Gh()),
		map[string]string{
			"referer":  "subject",
			"interest": strconv.Itoa(int(sc.CStatus)),
			"rating":   rating,
			"tags":     strings.Join(sc.Tags, " "),
			"comment":  sc.Comment,
			"update":   "保存",
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit subject collection")
		return false, err
	}
	return checkWrite(res), nil
}

// SetEpisodeCollection submits one episode's status. The watched_up_to
// status expands to a batch write over the episode and everything before
// it in the containing subject collection.
func (c Client) SetEpisodeCollection(ctx context.Context, ec *EpisodeCollection) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:SetEpisodeCollection")
	defer span.End()

	if ec == nil {
		return false, fmt.Errorf("no episode collection provided")
	}
	if ec.CStatus == EpUnset {
		return false, fmt.Errorf("episode status not set, use RemoveCollection to remove a collection")
	}
	if !ec.CStatus.valid() {
		return false, fmt.Errorf("corrupted episode status %q", string(ec.CStatus))
	}

	if ec.CStatus == EpWatchedUpTo {
		if ec.subColl == nil {
			return false, fmt.Errorf("the watched_up_to status needs the containing subject collection")
		}
		epColls, err := ec.subColl.prefixThrough(ec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to expand the watched prefix")
			return false, err
		}
		return c.setWatchedBatch(ctx, epColls)
	}

	res, err := c.Core.Get(
		ctx,
		fmt.Sprintf("/subject/ep/%s/status/%s?gh=%s", ec.Episode.Id, ec.CStatus, c.Core.Gh()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit episode status")
		return false, err
	}
	if ec.subColl != nil {
		// the status endpoint answers with the subject page, which
		// carries the refreshed watched counter
		if doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body())); err == nil {
			if n, err := extract.WatchedCount(doc); err == nil {
				ec.subColl.NWatchedEps = n
			}
		}
	}
	return checkWrite(res), nil
}

// setWatchedBatch marks a set of sibling episodes watched in one ajax
// call. Local statuses and the parent's watched counter update only
// after the service acknowledges, all or nothing.
func (c Client) setWatchedBatch(ctx context.Context, epColls []*EpisodeCollection) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:setWatchedBatch")
	defer span.End()

	if len(epColls) == 0 {
		return false, fmt.Errorf("no episodes to mark watched")
	}
	parent := epColls[0].subColl
	if parent == nil {
		return false, fmt.Errorf("the episodes have no containing subject collection")
	}
	ids := make([]string, len(epColls))
	for i, ec := range epColls {
		if ec.subColl != parent {
			return false, fmt.Errorf("every episode must belong to the same subject collection")
		}
		ids[i] = ec.Episode.Id
	}

	res, err := c.Core.PostForm(
		ctx,
		fmt.Sprintf("/subject/ep/%s/status/watched?gh=%s&ajax=1", ids[len(ids)-1], c.Core.Gh()),
		map[string]string{"ep_id": strings.Join(ids, ",")},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the batch")
		return false, err
	}
	if res.StatusCode() != http.StatusOK || res.String() != `{"status":"ok"}` {
		span.SetStatus(codes.Error, "the service did not acknowledge the batch")
		return false, nil
	}

	doc, err := c.getDoc(ctx, "/subject/"+parent.Subject.Id)
	if err != nil {
		err = fmt.Errorf("the batch write was acknowledged but refreshing the watched counter failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to refresh the watched counter")
		return false, err
	}
	n, err := extract.WatchedCount(doc)
	if err != nil {
		err = fmt.Errorf("the batch write was acknowledged but refreshing the watched counter failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to refresh the watched counter")
		return false, err
	}
	parent.NWatchedEps = n
	for _, ec := range epColls {
		ec.CStatus = EpWatched
	}
	return true, nil
}

// RemoveCollection drops a collection record off the service. The local
// status clears whenever the request itself goes through, even when the
// service reports failure.
func (c Client) RemoveCollection(ctx context.Context, coll Collection) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:RemoveCollection")
	defer span.End()

	var path string
	switch coll := coll.(type) {
	case *SubjectCollection:
		path = fmt.Sprintf("/subject/%s/remove?gh=%s", coll.Subject.Id, c.Core.Gh())
	case *EpisodeCollection:
		path = fmt.Sprintf("/subject/ep/%s/status/remove?gh=%s", coll.Episode.Id, c.Core.Gh())
	default:
		return false, fmt.Errorf("unsupported collection kind %T", coll)
	}

	res, err := c.Core.Get(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the removal")
		return false, err
	}
	switch coll := coll.(type) {
	case *SubjectCollection:
		coll.CStatus = StatusUnset
	case *EpisodeCollection:
		coll.CStatus = EpUnset
	}
	return checkWrite(res), nil
}

// SetWatchedCount submits the subject record's watched counter, then
// re-scrapes the episode list so the record's episode statuses reflect
// what the service derived from the new counter.
func (c Client) SetWatchedCount(ctx context.Context, sc *SubjectCollection) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:SetWatchedCount")
	defer span.End()

	if sc == nil {
		return false, fmt.Errorf("no subject collection provided")
	}
	if sc.CStatus == StatusUnset {
		return false, fmt.Errorf("the subject is not in the collection, its watched counter is undefined")
	}
	if sc.CStatus == StatusWish {
		return false, fmt.Errorf("a wished subject cannot have watched episodes")
	}
	if sc.NWatchedEps < 0 || (sc.Subject.NEps > 0 && sc.NWatchedEps > len(sc.Subject.Eps)) {
		return false, fmt.Errorf("watched counter %d is out of range", sc.NWatchedEps)
	}

	// this endpoint takes no gh token
	res, err := c.Core.PostForm(
		ctx,
		"/subject/set/watched/"+sc.Subject.Id,
		map[string]string{
			"referer":    "subject",
			"submit":     "更新",
			"watchedeps": strconv.Itoa(sc.NWatchedEps),
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit the watched counter")
		return false, err
	}
	if !checkWrite(res) {
		return false, nil
	}

	epsDoc, err := c.getDoc(ctx, "/subject/"+sc.Subject.Id+"/ep")
	if err != nil {
		err = fmt.Errorf("the write landed but refreshing episode statuses failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to refresh episode statuses")
		return false, err
	}
	epColls, err := c.episodeCollectionsFor(ctx, sc, epsDoc)
	if err != nil {
		err = fmt.Errorf("the write landed but refreshing episode statuses failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to refresh episode statuses")
		return false, err
	}
	sc.EpColls = epColls
	return true, nil
}
