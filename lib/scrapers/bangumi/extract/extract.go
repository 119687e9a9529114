package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bgmtrack/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/bangumi/extract")

// UserId returns the id of the viewer the page was rendered for, or ""
// when the page was served to a logged-out visitor.
func UserId(doc *goquery.Document) string {
	href, ok := doc.Find(".idBadgerNeue .avatar").Attr("href")
	if !ok {
		return ""
	}
	return htmlutil.LastPathSegment(href)
}

// LogoutToken returns the anti-forgery token embedded in the logout link
// of an authenticated page, or "" when there is no logout link.
func LogoutToken(doc *goquery.Document) string {
	href, ok := doc.Find(`a[href*="/logout/"]`).Attr("href")
	if !ok {
		return ""
	}
	return htmlutil.LastPathSegment(href)
}

// SubjectType returns the category of a subject page ("anime", "book",
// "game" or "real"), taken from the highlighted entry of the site nav.
func SubjectType(doc *goquery.Document) string {
	href, ok := doc.Find("#navMenuNeue .focus").Attr("href")
	if !ok {
		return ""
	}
	return strings.Trim(href, "/")
}

type SubjectInfo struct {
	Id      string
	Title   string
	ChTitle string
	// NEps is 0 when the infobox does not declare an episode count.
	NEps int
}

var nEpsRegex = regexp.MustCompile(`话数: ([0-9]+)`)

// Subject scrapes the identity fields of a subject main page.
func Subject(doc *goquery.Document) (SubjectInfo, error) {
	anchor := doc.Find(".nameSingle a").First()
	href, ok := anchor.Attr("href")
	if !ok {
		return SubjectInfo{}, fmt.Errorf("could not find the subject title anchor")
	}

	info := SubjectInfo{
		Id:      htmlutil.LastPathSegment(href),
		Title:   anchor.Text(),
		ChTitle: anchor.AttrOr("title", ""),
	}
	groups := nEpsRegex.FindStringSubmatch(doc.Find("#infobox").Text())
	if len(groups) >= 2 {
		n, err := strconv.Atoi(groups[1])
		if err == nil {
			info.NEps = n
		}
	}
	return info, nil
}

// InfoBox parses the "key: value" lines of the subject infobox. Keys
// repeat on real pages (one alias per line), so values accumulate per
// key. Lines that do not fit the shape are skipped.
func InfoBox(doc *goquery.Document) map[string][]string {
	fields := map[string][]string{}
	for _, line := range strings.Split(doc.Find("#infobox").Text(), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), ": ")
		if !found || key == "" {
			continue
		}
		fields[key] = append(fields[key], value)
	}
	return fields
}

type EpisodeInfo struct {
	Id  string
	Num int
	// Type is the sort label, usually one of "EP", "SP", "OP", "ED".
	Type string
	// AirState is "air" (aired), "today" (airs today) or "na" (not aired).
	AirState string
	Title    string
	ChTitle  string
}

var epLabelRegex = regexp.MustCompile(`([a-zA-Z]*)([0-9]+)`)

// Episodes scrapes every episode heading of a subject episode list page,
// in document order.
func Episodes(ctx context.Context, doc *goquery.Document) ([]EpisodeInfo, error) {
	ctx, span := tracer.Start(ctx, "Episodes")
	defer span.End()

	var eps []EpisodeInfo
	var failure error
	doc.Find(".line_list h6").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		ep, err := episodeFromHeading(sel)
		if err != nil {
			failure = err
			return false
		}
		eps = append(eps, ep)
		return true
	})
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, "failed to parse episode heading")
		return nil, failure
	}
	return eps, nil
}

// A typical heading:
//
//	<h6><span class="epAirStatus" title="已放送"><span class="Air"></span></span>
//	<a href="/ep/46037">SP0.よせあつめブルース</a>
//	<span class="tip"> / Mish-Mash Blues</span></h6>
func episodeFromHeading(sel *goquery.Selection) (EpisodeInfo, error) {
	anchor := sel.Find("a").First()
	href, ok := anchor.Attr("href")
	if !ok {
		return EpisodeInfo{}, fmt.Errorf("episode heading has no link")
	}

	label, title, _ := strings.Cut(anchor.Text(), ".")
	groups := epLabelRegex.FindStringSubmatch(label)
	if groups == nil {
		return EpisodeInfo{}, fmt.Errorf("unrecognized episode label %q", label)
	}
	num, err := strconv.Atoi(groups[2])
	if err != nil {
		return EpisodeInfo{}, fmt.Errorf("unrecognized episode number in %q: %w", label, err)
	}
	epType := groups[1]
	if epType == "" {
		epType = "EP"
	}

	info := EpisodeInfo{
		Id:    htmlutil.LastPathSegment(href),
		Num:   num,
		Type:  epType,
		Title: title,
	}
	classes := strings.Fields(sel.Find(".epAirStatus span").First().AttrOr("class", ""))
	if len(classes) > 0 {
		info.AirState = strings.ToLower(classes[0])
	}
	// the tip reads " / <localized title>"
	tip := sel.Find(".tip").Text()
	if len(tip) >= 3 {
		info.ChTitle = tip[3:]
	}
	return info, nil
}

// EpisodeStatuses returns the viewer's own collection status slug for each
// of the given episodes on a subject episode list page, index-aligned with
// epIds. Episodes the viewer has no status on come back as "".
func EpisodeStatuses(ctx context.Context, doc *goquery.Document, epIds []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "EpisodeStatuses")
	defer span.End()

	statuses := make([]string, len(epIds))
	markers := doc.Find(`.line_list span[class^="status"]`)
	if markers.Length() == len(epIds) {
		markers.Each(func(i int, sel *goquery.Selection) {
			statuses[i] = statusFromMarker(sel)
		})
		return statuses, nil
	}

	// rows without a status marker break positional alignment, look each
	// episode up by id instead
	span.AddEvent("falling back to per-episode status lookup")
	for i, id := range epIds {
		status, err := EpisodeStatus(doc, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to look up episode status")
			return nil, err
		}
		statuses[i] = status
	}
	return statuses, nil
}

// EpisodeStatus returns the viewer's status slug for a single episode row
// of a subject episode list page, "" when the viewer has no status on it.
func EpisodeStatus(doc *goquery.Document, epId string) (string, error) {
	marker := doc.Find(fmt.Sprintf(`a[href="/ep/%s"]`, epId)).
		Closest("li").
		Find(".listEpPrgManager span").
		First()
	if marker.Length() == 0 {
		return "", fmt.Errorf("episode %s has no status cell on this page", epId)
	}
	return statusFromMarker(marker), nil
}

func statusFromMarker(sel *goquery.Selection) string {
	classes := strings.Fields(sel.AttrOr("class", ""))
	if len(classes) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(classes[0], "status"))
}

type CollectionInfo struct {
	CStatus int
	// Rating is 0 when the viewer has not rated the subject.
	Rating      int
	Tags        []string
	Comment     string
	NWatchedEps int
}

// Collection scrapes the viewer's own collection form on a subject main
// page. The second return is false when the subject is not in the viewer's
// collection, in which case the page renders the add-to-collection tab
// instead of a filled form.
func Collection(doc *goquery.Document) (CollectionInfo, bool, error) {
	if doc.Find("#SecTab").Length() > 0 {
		return CollectionInfo{}, false, nil
	}
	form := doc.Find("#collectBoxForm")
	if form.Length() == 0 {
		return CollectionInfo{}, false, fmt.Errorf("could not find the collection form")
	}

	checked := htmlutil.CheckedValues(form.Find(".collectType"))
	if len(checked) == 0 {
		return CollectionInfo{}, false, fmt.Errorf("no collection status is checked")
	}
	status, err := strconv.Atoi(checked[0])
	if err != nil {
		return CollectionInfo{}, false, fmt.Errorf("unexpected collection status %q", checked[0])
	}
	info := CollectionInfo{CStatus: status}

	if rated := htmlutil.CheckedValues(form.Find("#interest_rate")); len(rated) > 0 {
		info.Rating, err = strconv.Atoi(rated[0])
		if err != nil {
			return CollectionInfo{}, false, fmt.Errorf("unexpected rating %q", rated[0])
		}
	}
	info.Tags = strings.Fields(form.Find("#tags").AttrOr("value", ""))
	info.Comment = form.Find("#comment").Text()

	info.NWatchedEps, err = WatchedCount(doc)
	if err != nil {
		return CollectionInfo{}, false, err
	}
	return info, true, nil
}

// WatchedCount reads the aggregate watched-episode counter of a subject
// main page.
func WatchedCount(doc *goquery.Document) (int, error) {
	value, ok := doc.Find("#watchedeps").Attr("value")
	if !ok {
		return 0, fmt.Errorf("could not find the watched episode counter")
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("unexpected watched episode counter %q", value)
	}
	return n, nil
}

// PageCount reads the pager of a listing page. A page without a pager is
// the only page.
func PageCount(doc *goquery.Document) int {
	pager := doc.Find("#multipage")
	anchors := pager.Find("a.p")
	if anchors.Length() == 0 {
		return 1
	}

	max := 0
	anchors.Each(func(_ int, sel *goquery.Selection) {
		href := sel.AttrOr("href", "")
		n, err := strconv.Atoi(href[strings.LastIndexByte(href, '=')+1:])
		if err == nil && n > max {
			max = n
		}
	})
	if current, err := strconv.Atoi(strings.TrimSpace(pager.Find(".p_cur").Text())); err == nil && current > max {
		max = current
	}
	if max == 0 {
		return 1
	}
	return max
}

type ListedSubject struct {
	Id      string
	Title   string
	ChTitle string
}

// ListedSubjects scrapes the subject entries of one listing page, in page
// order.
func ListedSubjects(ctx context.Context, doc *goquery.Document) ([]ListedSubject, error) {
	ctx, span := tracer.Start(ctx, "ListedSubjects")
	defer span.End()

	list := doc.Find("#browserItemList")
	if list.Length() == 0 {
		err := fmt.Errorf("could not find the listing container")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var items []ListedSubject
	var failure error
	list.Find("li").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, ok := sel.Attr("id")
		if !ok || !strings.HasPrefix(id, "item_") {
			failure = fmt.Errorf("listed subject has no id")
			return false
		}
		items = append(items, ListedSubject{
			Id:      strings.TrimPrefix(id, "item_"),
			Title:   sel.Find("h3 a.l").Text(),
			ChTitle: sel.Find("h3 small.grey").Text(),
		})
		return true
	})
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, "failed to parse listing entry")
		return nil, failure
	}
	return items, nil
}

// SubjectIdForEpisode resolves the owning subject id on an episode page.
func SubjectIdForEpisode(doc *goquery.Document) (string, error) {
	href, ok := doc.Find("#subject_inner_info a").First().Attr("href")
	if !ok {
		return "", fmt.Errorf("could not find the owning subject link")
	}
	return htmlutil.LastPathSegment(href), nil
}
