package track

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"bgmtrack/lib/scrapers/bangumi/core"
	"bgmtrack/lib/scrapers/bangumi/extract"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/bangumi/track")

// Client reads and writes the logged-in user's collection through a
// bangumi session. Operations issue their round trips sequentially and
// are not safe for concurrent use of one underlying session.
type Client struct {
	Core *core.Client
}

func NewClient(coreClient *core.Client) Client {
	return Client{Core: coreClient}
}

func (c Client) getDoc(ctx context.Context, path string) (*goquery.Document, error) {
	res, err := c.Core.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func subjectFromDocs(ctx context.Context, mainDoc, epsDoc *goquery.Document) (*Subject, error) {
	if subType := extract.SubjectType(mainDoc); subType != string(SubjectAnime) {
		return nil, fmt.Errorf("only anime subjects carry a trackable episode list, got %q", subType)
	}
	info, err := extract.Subject(mainDoc)
	if err != nil {
		return nil, err
	}
	epInfos, err := extract.Episodes(ctx, epsDoc)
	if err != nil {
		return nil, err
	}
	return newSubject(info, extract.InfoBox(mainDoc), epInfos), nil
}

// Subject fetches a full subject off its main page and episode list
// page. Only anime subjects are supported, the other categories do not
// render a trackable episode list.
func (c Client) Subject(ctx context.Context, id string) (*Subject, error) {
	ctx, span := tracer.Start(ctx, "client:Subject")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "subject",
		Value: attribute.StringValue(id),
	})

	mainDoc, err := c.getDoc(ctx, "/subject/"+id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch subject main page")
		return nil, err
	}
	epsDoc, err := c.getDoc(ctx, "/subject/"+id+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	sub, err := subjectFromDocs(ctx, mainDoc, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse subject")
		return nil, err
	}
	return sub, nil
}

func (c Client) subjectIdForEpisode(ctx context.Context, epId string) (string, error) {
	doc, err := c.getDoc(ctx, "/ep/"+epId)
	if err != nil {
		return "", err
	}
	return extract.SubjectIdForEpisode(doc)
}

// Episode fetches one episode by resolving its owning subject and
// scraping that subject's episode list. The returned episode is
// standalone, its Subject back-reference is nil.
func (c Client) Episode(ctx context.Context, id string) (*Episode, error) {
	ctx, span := tracer.Start(ctx, "client:Episode")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "episode",
		Value: attribute.StringValue(id),
	})

	subId, err := c.subjectIdForEpisode(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve owning subject")
		return nil, err
	}
	eps, err := c.EpisodesForSubject(ctx, subId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list")
		return nil, err
	}
	for _, ep := range eps {
		if ep.Id == id {
			return ep, nil
		}
	}
	err = fmt.Errorf("episode %s is not listed under subject %s", id, subId)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// EpisodesForSubject fetches the episode list alone, without the subject
// main page. The episodes are standalone.
func (c Client) EpisodesForSubject(ctx context.Context, subId string) ([]*Episode, error) {
	ctx, span := tracer.Start(ctx, "client:EpisodesForSubject")
	defer span.End()

	epsDoc, err := c.getDoc(ctx, "/subject/"+subId+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	epInfos, err := extract.Episodes(ctx, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse episode list")
		return nil, err
	}
	eps := make([]*Episode, len(epInfos))
	for i, info := range epInfos {
		eps[i] = newEpisode(info)
	}
	return eps, nil
}

// SubjectCollection fetches the viewer's own record for a subject. A
// subject outside the collection yields an empty record, never an error.
func (c Client) SubjectCollection(ctx context.Context, id string) (*SubjectCollection, error) {
	ctx, span := tracer.Start(ctx, "client:SubjectCollection")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "subject",
		Value: attribute.StringValue(id),
	})

	mainDoc, err := c.getDoc(ctx, "/subject/"+id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch subject main page")
		return nil, err
	}
	epsDoc, err := c.getDoc(ctx, "/subject/"+id+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	sub, err := subjectFromDocs(ctx, mainDoc, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse subject")
		return nil, err
	}
	sc, err := c.collectionFromDocs(ctx, sub, mainDoc, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse collection")
		return nil, err
	}
	return sc, nil
}

// SubjectCollectionFor is SubjectCollection with an already fetched
// subject. The subject's episode identities are reused, statuses are
// scraped fresh.
func (c Client) SubjectCollectionFor(ctx context.Context, subject *Subject) (*SubjectCollection, error) {
	ctx, span := tracer.Start(ctx, "client:SubjectCollectionFor")
	defer span.End()

	mainDoc, err := c.getDoc(ctx, "/subject/"+subject.Id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch subject main page")
		return nil, err
	}
	epsDoc, err := c.getDoc(ctx, "/subject/"+subject.Id+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	sc, err := c.collectionFromDocs(ctx, subject, mainDoc, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse collection")
		return nil, err
	}
	return sc, nil
}

func (c Client) collectionFromDocs(ctx context.Context, subject *Subject, mainDoc, epsDoc *goquery.Document) (*SubjectCollection, error) {
	// pages served to logged-out visitors render no collection form at all
	if extract.UserId(mainDoc) == "" {
		return nil, fmt.Errorf("the subject page was served without a login")
	}

	sc := &SubjectCollection{Subject: subject, client: c}
	info, collected, err := extract.Collection(mainDoc)
	if err != nil {
		return nil, err
	}
	if !collected {
		return sc, nil
	}

	sc.CStatus = CollectionStatus(info.CStatus)
	sc.Rating = info.Rating
	sc.Tags = info.Tags
	sc.Comment = info.Comment
	sc.NWatchedEps = info.NWatchedEps
	sc.EpColls, err = c.episodeCollectionsFor(ctx, sc, epsDoc)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (c Client) episodeCollectionsFor(ctx context.Context, sc *SubjectCollection, epsDoc *goquery.Document) ([]*EpisodeCollection, error) {
	epIds := make([]string, len(sc.Subject.Eps))
	for i, ep := range sc.Subject.Eps {
		epIds[i] = ep.Id
	}
	statuses, err := extract.EpisodeStatuses(ctx, epsDoc, epIds)
	if err != nil {
		return nil, err
	}

	epColls := make([]*EpisodeCollection, len(statuses))
	for i, status := range statuses {
		epColls[i] = &EpisodeCollection{
			Episode: sc.Subject.Eps[i],
			CStatus: EpStatus(status),
			subColl: sc,
			client:  c,
		}
	}
	return epColls, nil
}

// EpisodeCollection fetches the viewer's record for one episode. No
// parent SubjectCollection is attached.
func (c Client) EpisodeCollection(ctx context.Context, id string) (*EpisodeCollection, error) {
	ctx, span := tracer.Start(ctx, "client:EpisodeCollection")
	defer span.End()
	span.SetAttributes(attribute.KeyValue{
		Key:   "episode",
		Value: attribute.StringValue(id),
	})

	subId, err := c.subjectIdForEpisode(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve owning subject")
		return nil, err
	}
	epsDoc, err := c.getDoc(ctx, "/subject/"+subId+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	epInfos, err := extract.Episodes(ctx, epsDoc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse episode list")
		return nil, err
	}

	var episode *Episode
	for _, info := range epInfos {
		if info.Id == id {
			episode = newEpisode(info)
			break
		}
	}
	if episode == nil {
		err := fmt.Errorf("episode %s is not listed under subject %s", id, subId)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return c.episodeCollectionFromDoc(episode, epsDoc)
}

// EpisodeCollectionFor is EpisodeCollection with an already fetched
// episode.
func (c Client) EpisodeCollectionFor(ctx context.Context, episode *Episode) (*EpisodeCollection, error) {
	ctx, span := tracer.Start(ctx, "client:EpisodeCollectionFor")
	defer span.End()

	subId, err := c.subjectIdForEpisode(ctx, episode.Id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve owning subject")
		return nil, err
	}
	epsDoc, err := c.getDoc(ctx, "/subject/"+subId+"/ep")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch episode list page")
		return nil, err
	}
	return c.episodeCollectionFromDoc(episode, epsDoc)
}

func (c Client) episodeCollectionFromDoc(episode *Episode, epsDoc *goquery.Document) (*EpisodeCollection, error) {
	status, err := extract.EpisodeStatus(epsDoc, episode.Id)
	if err != nil {
		return nil, err
	}
	return &EpisodeCollection{
		Episode: episode,
		CStatus: EpStatus(status),
		client:  c,
	}, nil
}

// DummyCollections walks the paginated listing of a user's collection in
// one category and status, in increasing page order. userId defaults to
// the session's own id. A non-OK status on any page fails the whole call
// with no partial result.
func (c Client) DummyCollections(ctx context.Context, subType SubjectType, status CollectionStatus, userId string) ([]*DummySubjectCollection, error) {
	ctx, span := tracer.Start(ctx, "client:DummyCollections")
	defer span.End()

	if !subType.valid() {
		return nil, fmt.Errorf("invalid subject type %q", subType)
	}
	if !status.valid() {
		return nil, fmt.Errorf("invalid collection status %d", int(status))
	}
	if userId == "" {
		userId = c.Core.UserId()
	}
	base := fmt.Sprintf("/%s/list/%s/%s", subType, userId, status)

	doc, err := c.listingPage(ctx, base)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch first listing page")
		return nil, err
	}
	nPages := extract.PageCount(doc)
	span.SetAttributes(attribute.KeyValue{
		Key:   "pages",
		Value: attribute.IntValue(nPages),
	})

	items, err := extract.ListedSubjects(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse listing page")
		return nil, err
	}
	for page := 2; page <= nPages; page++ {
		pageDoc, err := c.listingPage(ctx, fmt.Sprintf("%s?page=%d", base, page))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed to fetch listing page %d", page))
			return nil, err
		}
		pageItems, err := extract.ListedSubjects(ctx, pageDoc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to parse listing page")
			return nil, err
		}
		items = append(items, pageItems...)
	}

	colls := make([]*DummySubjectCollection, len(items))
	for i, item := range items {
		colls[i] = &DummySubjectCollection{
			SubjectId: item.Id,
			Title:     item.Title,
			ChTitle:   item.ChTitle,
			CStatus:   status,
			client:    c,
		}
	}
	return colls, nil
}

func (c Client) listingPage(ctx context.Context, path string) (*goquery.Document, error) {
	res, err := c.Core.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("listing request failed with status %d", res.StatusCode())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}
