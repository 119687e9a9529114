package collectionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"bgmtrack/lib/timezone"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Struct struct {
	File string `json:"file"`
}

func (config Struct) OpenDB(schema string) (*sql.DB, error) {
	if config.File == "" {
		return nil, fmt.Errorf("a database path was not specified")
	}
	if strings.HasPrefix(config.File, "libsql://") {
		remote, err := sql.Open("libsql", config.File)
		if err != nil {
			return nil, err
		}
		_, err = remote.Exec(schema)
		if err != nil {
			return nil, err
		}
		return remote, nil
	}

	if config.File != ":memory:" {
		_, statErr := os.Stat(config.File)
		if os.IsNotExist(statErr) {
			f, err := os.Create(config.File)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	sqlite, err := sql.Open("sqlite", config.File)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	sqlite.SetMaxOpenConns(1)
	_, err = sqlite.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	_, err = sqlite.Exec(schema)
	if err != nil {
		return nil, err
	}

	return sqlite, nil
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

type SubjectSnapshot struct {
	SubjectId   string
	Title       string
	Status      string
	Rating      int
	NWatchedEps int
	Tags        []string
	Comment     string
}

type PushRequest struct {
	Time     time.Time
	User     string
	Subjects []SubjectSnapshot
}

// Push records one snapshot per subject, replacing any snapshot the same
// subject already has in the same service-timezone day.
func (s Store) Push(ctx context.Context, req PushRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	startOfToday := time.Date(req.Time.Year(), req.Time.Month(), req.Time.Day(), 0, 0, 0, 0, timezone.Location).Unix()
	startOfTomorrow := time.Date(req.Time.Year(), req.Time.Month(), req.Time.Day()+1, 0, 0, 0, 0, timezone.Location).Unix()

	for _, sub := range req.Subjects {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_subject(user, subject_id, title)
			VALUES(?, ?, ?)
			ON CONFLICT(user, subject_id) DO UPDATE SET title = excluded.title
		`, req.User, sub.SubjectId, sub.Title)
		if err != nil {
			return err
		}

		var userSubjectId int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM user_subject WHERE user = ? AND subject_id = ?
		`, req.User, sub.SubjectId).Scan(&userSubjectId)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM collection_snapshot
			WHERE user_subject_id = ? AND time >= ? AND time < ?
		`, userSubjectId, startOfToday, startOfTomorrow)
		if err != nil {
			return err
		}

		tags, err := json.Marshal(sub.Tags)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO collection_snapshot(user_subject_id, time, status, rating, watched_eps, tags, comment)
			VALUES(?, ?, ?, ?, ?, ?, ?)
		`, userSubjectId, req.Time.Unix(), sub.Status, sub.Rating, sub.NWatchedEps, string(tags), sub.Comment)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type Snapshot struct {
	Time        time.Time
	Status      string
	Rating      int
	NWatchedEps int
	Tags        []string
	Comment     string
}

type SubjectSeries struct {
	SubjectId string
	Title     string
	Snapshots []Snapshot
}

func (s Store) Pull(ctx context.Context, user string) ([]SubjectSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT us.subject_id, us.title, cs.time, cs.status, cs.rating, cs.watched_eps, cs.tags, cs.comment
		FROM collection_snapshot cs
		JOIN user_subject us ON us.id = cs.user_subject_id
		WHERE us.user = ?
		ORDER BY us.subject_id, cs.time
	`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []SubjectSeries
	for rows.Next() {
		var subjectId, title, status, tags, comment string
		var unix int64
		var rating, watchedEps int
		err := rows.Scan(&subjectId, &title, &unix, &status, &rating, &watchedEps, &tags, &comment)
		if err != nil {
			return nil, err
		}

		snapshot := Snapshot{
			Time:        time.Unix(unix, 0).In(timezone.Location),
			Status:      status,
			Rating:      rating,
			NWatchedEps: watchedEps,
			Comment:     comment,
		}
		err = json.Unmarshal([]byte(tags), &snapshot.Tags)
		if err != nil {
			slog.WarnContext(ctx, "failed to unmarshal snapshot tags", "subject", subjectId, "err", err)
			continue
		}

		if len(series) == 0 || series[len(series)-1].SubjectId != subjectId {
			series = append(series, SubjectSeries{SubjectId: subjectId, Title: title})
		}
		last := &series[len(series)-1]
		last.Snapshots = append(last.Snapshots, snapshot)
	}

	return series, rows.Err()
}
