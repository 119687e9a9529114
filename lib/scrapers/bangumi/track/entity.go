package track

import (
	"fmt"

	"bgmtrack/lib/scrapers/bangumi/extract"
)

type SubjectType string

const (
	SubjectAnime SubjectType = "anime"
	SubjectBook  SubjectType = "book"
	SubjectGame  SubjectType = "game"
	SubjectReal  SubjectType = "real"
)

func (t SubjectType) valid() bool {
	switch t {
	case SubjectAnime, SubjectBook, SubjectGame, SubjectReal:
		return true
	}
	return false
}

// Subject is one trackable work. Identity fields are fixed once built
// from a page snapshot, a fresh fetch produces a new instance.
type Subject struct {
	Id      string
	Title   string
	ChTitle string
	// NEps is the episode count the infobox declares, 0 when it does not
	// declare one.
	NEps int
	// OtherInfo carries the remaining infobox fields, such as aliases.
	// Values accumulate per key since infobox keys repeat.
	OtherInfo map[string][]string
	// Eps is in page order, which is not necessarily id order.
	Eps []*Episode
}

// Episode is one episode row of a subject. Identity fields are fixed
// once built.
type Episode struct {
	Id  string
	Num int
	// Type is the sort label, usually "EP", "SP", "OP" or "ED".
	Type string
	// AirState is "air" (aired), "today" (airs today) or "na" (not aired).
	AirState string
	Title    string
	ChTitle  string

	subject *Subject
}

// Subject returns the owning subject, nil for standalone fetches.
func (e *Episode) Subject() *Subject {
	return e.subject
}

// Label is the sort label joined with the number, eg "EP15" or "SP1".
func (e *Episode) Label() string {
	return fmt.Sprintf("%s%d", e.Type, e.Num)
}

func newEpisode(info extract.EpisodeInfo) *Episode {
	return &Episode{
		Id:       info.Id,
		Num:      info.Num,
		Type:     info.Type,
		AirState: info.AirState,
		Title:    info.Title,
		ChTitle:  info.ChTitle,
	}
}

func newSubject(info extract.SubjectInfo, otherInfo map[string][]string, epInfos []extract.EpisodeInfo) *Subject {
	sub := &Subject{
		Id:        info.Id,
		Title:     info.Title,
		ChTitle:   info.ChTitle,
		NEps:      info.NEps,
		OtherInfo: otherInfo,
	}
	for _, epInfo := range epInfos {
		ep := newEpisode(epInfo)
		ep.subject = sub
		sub.Eps = append(sub.Eps, ep)
	}
	return sub
}
