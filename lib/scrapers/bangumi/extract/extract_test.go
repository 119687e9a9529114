package extract

import (
	"context"
	"strings"
	"testing"

	"bgmtrack/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const subjectPage = `<!DOCTYPE html>
<html>
<body>
<div id="headerNeue2">
	<div id="navMenuNeue">
		<ul>
			<li><a href="/anime" class="focus">动画</a></li>
			<li><a href="/book">书籍</a></li>
			<li><a href="/game">游戏</a></li>
		</ul>
	</div>
	<div class="idBadgerNeue">
		<a href="/user/271502" class="avatar"><span class="avatarNeue"></span></a>
	</div>
	<a href="/logout/8f0a3bd1">登出</a>
</div>
<h1 class="nameSingle">
	<a href="/subject/253" title="カウボーイビバップ">Cowboy Bebop</a>
</h1>
<ul id="infobox">
	<li><span class="tip">中文名: </span>星际牛仔</li>
	<li>别名: 赏金猎人</li>
	<li>别名: 恶男杰特</li>
	<li>话数: 26</li>
	<li>放送开始: 1998年4月3日</li>
	<li>导演: 渡辺信一郎</li>
</ul>
<div id="interestBox">
	<form id="collectBoxForm" action="/subject/253/interest/update">
		<ul class="collectType">
			<li><input type="radio" name="interest" value="1"></li>
			<li><input type="radio" name="interest" value="2" checked></li>
			<li><input type="radio" name="interest" value="3"></li>
			<li><input type="radio" name="interest" value="4"></li>
			<li><input type="radio" name="interest" value="5"></li>
		</ul>
		<div id="interest_rate">
			<input type="radio" name="rating" value="9">
			<input type="radio" name="rating" value="10" checked>
		</div>
		<input id="tags" name="tags" value=" SciFi Space ">
		<textarea id="comment" name="comment">see you space cowboy</textarea>
	</form>
</div>
<input id="watchedeps" name="watchedeps" value="12">
</body>
</html>`

const subjectPageUncollected = `<!DOCTYPE html>
<html>
<body>
<div id="navMenuNeue">
	<ul><li><a href="/anime" class="focus">动画</a></li></ul>
</div>
<div class="idBadgerNeue">
	<a href="/user/271502" class="avatar"></a>
</div>
<h1 class="nameSingle">
	<a href="/subject/876" title="玲音">Serial Experiments Lain</a>
</h1>
<ul id="infobox">
	<li>话数: 13</li>
</ul>
<div id="interestBox">
	<ul id="SecTab">
		<li><a href="#">想看</a></li>
		<li><a href="#">看过</a></li>
	</ul>
</div>
</body>
</html>`

// episode list page where every row carries a status marker, so the
// markers line up positionally with the headings
const epListPage = `<!DOCTYPE html>
<html>
<body>
<div class="idBadgerNeue"><a href="/user/271502" class="avatar"></a></div>
<ul class="line_list">
	<li>
		<h6><span class="epAirStatus" title="已放送"><span class="Air"></span></span> <a href="/ep/519">EP1.Asteroid Blues</a><span class="tip"> / 小行星蓝调</span></h6>
		<div class="listEpPrgManager"><span class="statusWatched">看过</span></div>
	</li>
	<li>
		<h6><span class="epAirStatus" title="今日放送"><span class="Today"></span></span> <a href="/ep/520">EP2.Stray Dog Strut</a><span class="tip"> / 流浪狗进行曲</span></h6>
		<div class="listEpPrgManager"><span class="statusQueue">想看</span></div>
	</li>
	<li>
		<h6><span class="epAirStatus" title="未放送"><span class="NA"></span></span> <a href="/ep/46037">SP0.よせあつめブルース</a><span class="tip"> / Mish-Mash Blues</span></h6>
		<div class="listEpPrgManager"><span class="status">未收藏</span></div>
	</li>
</ul>
</body>
</html>`

// a stray status marker outside the episode rows breaks the positional
// alignment between markers and headings
const epListPageMisaligned = `<!DOCTYPE html>
<html>
<body>
<ul class="line_list">
	<li>
		<h6><span class="epAirStatus" title="已放送"><span class="Air"></span></span> <a href="/ep/519">EP1.Asteroid Blues</a><span class="tip"> / 小行星蓝调</span></h6>
		<div class="listEpPrgManager"><span class="statusWatched">看过</span></div>
	</li>
	<li class="sidepanel">
		<span class="statusWatched">1 人看过</span>
	</li>
	<li>
		<h6><span class="epAirStatus" title="已放送"><span class="Air"></span></span> <a href="/ep/520">EP2.Stray Dog Strut</a></h6>
		<div class="listEpPrgManager"><span class="statusDrop">抛弃</span></div>
	</li>
</ul>
</body>
</html>`

const listingPage = `<!DOCTYPE html>
<html>
<body>
<div id="multipage">
	<div class="page_inner">
		<span class="p_cur">1</span>
		<a href="/anime/list/271502/do?page=2" class="p">2</a>
		<a href="/anime/list/271502/do?page=3" class="p">3</a>
		<a href="/anime/list/271502/do?page=2" class="p">››</a>
	</div>
</div>
<ul id="browserItemList">
	<li id="item_253" class="item">
		<h3><a href="/subject/253" class="l">Cowboy Bebop</a> <small class="grey">星际牛仔</small></h3>
	</li>
	<li id="item_876" class="item">
		<h3><a href="/subject/876" class="l">Serial Experiments Lain</a> <small class="grey">玲音</small></h3>
	</li>
</ul>
</body>
</html>`

const episodePage = `<!DOCTYPE html>
<html>
<body>
<div id="subject_inner_info" class="subject_info">
	<a href="/subject/253" class="avatar"><img src="/cover/253.jpg"></a>
	<h2><a href="/subject/253">Cowboy Bebop</a></h2>
</div>
</body>
</html>`

func parse(t *testing.T, page string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestPageIdentity(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	doc := parse(t, subjectPage)
	require.Equal(t, "271502", UserId(doc))
	require.Equal(t, "8f0a3bd1", LogoutToken(doc))
	require.Equal(t, "anime", SubjectType(doc))

	loggedOut := parse(t, `<html><body><h1 class="nameSingle"><a href="/subject/253">Cowboy Bebop</a></h1></body></html>`)
	require.Equal(t, "", UserId(loggedOut))
	require.Equal(t, "", LogoutToken(loggedOut))
}

func TestSubject(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	info, err := Subject(parse(t, subjectPage))
	require.NoError(t, err)
	require.Equal(t, SubjectInfo{
		Id:      "253",
		Title:   "Cowboy Bebop",
		ChTitle: "カウボーイビバップ",
		NEps:    26,
	}, info)
}

func TestSubjectWithoutEpisodeCount(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	doc := parse(t, `<html><body>
		<h1 class="nameSingle"><a href="/subject/23686">Short Peace</a></h1>
		<ul id="infobox"><li>放送开始: 2013年7月20日</li></ul>
	</body></html>`)
	info, err := Subject(doc)
	require.NoError(t, err)
	require.Equal(t, "23686", info.Id)
	require.Equal(t, 0, info.NEps)
}

func TestInfoBox(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	fields := InfoBox(parse(t, subjectPage))
	require.Equal(t, []string{"星际牛仔"}, fields["中文名"])
	require.Equal(t, []string{"26"}, fields["话数"])
	require.Equal(t, []string{"渡辺信一郎"}, fields["导演"])
	// infobox keys repeat, one alias per line
	require.Equal(t, []string{"赏金猎人", "恶男杰特"}, fields["别名"])
}

func TestEpisodes(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	eps, err := Episodes(context.Background(), parse(t, epListPage))
	require.NoError(t, err)
	require.Equal(t, []EpisodeInfo{
		{Id: "519", Num: 1, Type: "EP", AirState: "air", Title: "Asteroid Blues", ChTitle: "小行星蓝调"},
		{Id: "520", Num: 2, Type: "EP", AirState: "today", Title: "Stray Dog Strut", ChTitle: "流浪狗进行曲"},
		{Id: "46037", Num: 0, Type: "SP", AirState: "na", Title: "よせあつめブルース", ChTitle: "Mish-Mash Blues"},
	}, eps)
}

func TestEpisodesWithoutLocalizedTitle(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	eps, err := Episodes(context.Background(), parse(t, epListPageMisaligned))
	require.NoError(t, err)
	require.Len(t, eps, 2)
	require.Equal(t, "", eps[1].ChTitle)
}

func TestEpisodeStatuses(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	statuses, err := EpisodeStatuses(
		context.Background(),
		parse(t, epListPage),
		[]string{"519", "520", "46037"},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"watched", "queue", ""}, statuses)
}

func TestEpisodeStatusesMisaligned(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	doc := parse(t, epListPageMisaligned)
	statuses, err := EpisodeStatuses(context.Background(), doc, []string{"519", "520"})
	require.NoError(t, err)
	require.Equal(t, []string{"watched", "drop"}, statuses)

	_, err = EpisodeStatuses(context.Background(), doc, []string{"519", "99999"})
	require.Error(t, err)
}

func TestEpisodeStatus(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	doc := parse(t, epListPage)

	status, err := EpisodeStatus(doc, "520")
	require.NoError(t, err)
	require.Equal(t, "queue", status)

	status, err = EpisodeStatus(doc, "46037")
	require.NoError(t, err)
	require.Equal(t, "", status)

	_, err = EpisodeStatus(doc, "99999")
	require.Error(t, err)
}

func TestCollection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	info, collected, err := Collection(parse(t, subjectPage))
	require.NoError(t, err)
	require.True(t, collected)
	require.Equal(t, CollectionInfo{
		CStatus:     2,
		Rating:      10,
		Tags:        []string{"SciFi", "Space"},
		Comment:     "see you space cowboy",
		NWatchedEps: 12,
	}, info)
}

func TestCollectionNotCollected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	_, collected, err := Collection(parse(t, subjectPageUncollected))
	require.NoError(t, err)
	require.False(t, collected)
}

func TestWatchedCount(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	n, err := WatchedCount(parse(t, subjectPage))
	require.NoError(t, err)
	require.Equal(t, 12, n)

	_, err = WatchedCount(parse(t, subjectPageUncollected))
	require.Error(t, err)
}

func TestPageCount(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	require.Equal(t, 3, PageCount(parse(t, listingPage)))
	require.Equal(t, 1, PageCount(parse(t, subjectPage)))
}

func TestListedSubjects(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	items, err := ListedSubjects(context.Background(), parse(t, listingPage))
	require.NoError(t, err)
	require.Equal(t, []ListedSubject{
		{Id: "253", Title: "Cowboy Bebop", ChTitle: "星际牛仔"},
		{Id: "876", Title: "Serial Experiments Lain", ChTitle: "玲音"},
	}, items)
}

func TestSubjectIdForEpisode(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/bangumi/extract")
	defer cleanup()

	id, err := SubjectIdForEpisode(parse(t, episodePage))
	require.NoError(t, err)
	require.Equal(t, "253", id)

	_, err = SubjectIdForEpisode(parse(t, subjectPage))
	require.Error(t, err)
}
