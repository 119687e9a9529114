package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"bgmtrack/cmd/bgm-cli/keychain"
	"bgmtrack/lib/collectionstore"
	"bgmtrack/lib/collectionstore/db"
	"bgmtrack/lib/configutil"
	"bgmtrack/lib/scrapers/bangumi/core"
	"bgmtrack/lib/scrapers/bangumi/track"
	"bgmtrack/lib/serviceutil"
	"bgmtrack/lib/textutil"

	"github.com/AlecAivazis/survey/v2"
	"github.com/antzucaro/matchr"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "bgm-cli",
	Short: "bgm-cli tracks your bangumi anime collection from the terminal.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level.")
}

func initSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type Config struct {
	BaseUrl            string                 `json:"base_url"`
	Database           collectionstore.Struct `json:"database"`
	DefaultSubjectType string                 `json:"default_subject_type"`
}

func readConfig() Config {
	cfg, err := configutil.ReadRecursively[Config]("bgm-cli.json5")
	if errors.Is(err, os.ErrNotExist) {
		cfg = Config{}
	} else if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	if cfg.Database.File == "" {
		cfg.Database.File = "bgm-cli.db"
	}
	if cfg.DefaultSubjectType == "" {
		cfg.DefaultSubjectType = string(track.SubjectAnime)
	}
	return cfg
}

func createClient(ctx context.Context, cfg Config) track.Client {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	coreClient, err := core.NewClient(ctx, core.ClientOptions{
		BaseUrl: cfg.BaseUrl,
	})
	if err != nil {
		serviceutil.Fatal("failed to initialize bangumi client", err)
	}

	email, password, err := keychain.GetCredentials()
	if err != nil {
		serviceutil.Fatal("no stored credentials, run `bgm-cli login` first", err)
	}
	err = coreClient.Login(ctx, email, password)
	if err != nil {
		serviceutil.Fatal("failed to login to bangumi", err)
	}

	return track.NewClient(coreClient)
}

func endSession(ctx context.Context, client track.Client) {
	err := client.Core.Logout(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to end the bangumi session", "err", err)
	}
}

func openStore(cfg Config) (collectionstore.Store, func()) {
	sqlite, err := cfg.Database.OpenDB(db.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open the snapshot database", err)
	}
	return collectionstore.NewStore(sqlite), func() { sqlite.Close() }
}

// similarity below which a fuzzy title match is not even offered
const confirmThreshold = 0.8

// resolveSubjectId accepts a numeric subject id as-is. Anything else is
// treated as a title and resolved against the viewer's watching list,
// asking before settling on a fuzzy match.
func resolveSubjectId(ctx context.Context, client track.Client, cfg Config, arg string) string {
	if _, err := strconv.Atoi(arg); err == nil {
		return arg
	}

	colls, err := client.DummyCollections(ctx, track.SubjectType(cfg.DefaultSubjectType), track.StatusDoing, "")
	if err != nil {
		serviceutil.Fatal("failed to list your collection for title matching", err)
	}

	for _, coll := range colls {
		if textutil.MatchesAny(arg, []string{coll.Title, coll.ChTitle}) {
			return coll.SubjectId
		}
	}

	var best *track.DummySubjectCollection
	bestSimilarity := 0.0
	normalized := textutil.NormalizeTitle(arg)
	for _, coll := range colls {
		for _, title := range []string{coll.Title, coll.ChTitle} {
			similarity := matchr.JaroWinkler(normalized, textutil.NormalizeTitle(title), false)
			if similarity > bestSimilarity {
				bestSimilarity = similarity
				best = coll
			}
		}
	}
	if best == nil || bestSimilarity < confirmThreshold {
		serviceutil.Fatal(
			"could not resolve subject",
			fmt.Errorf("nothing in your watching list is titled close to %q", arg),
		)
	}

	confirmed := false
	err = survey.AskOne(&survey.Confirm{
		Message: fmt.Sprintf("Did you mean %s (%s)?", best.Title, best.SubjectId),
		Default: true,
	}, &confirmed)
	if err != nil {
		serviceutil.Fatal("failed to confirm subject", err)
	}
	if !confirmed {
		fmt.Fprintln(os.Stderr, "aborted")
		os.Exit(1)
	}
	return best.SubjectId
}
