package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bluesky-social/tgmod/automod/auditlog"
	"github.com/bluesky-social/tgmod/automod/duration"
	"github.com/bluesky-social/tgmod/automod/engine"
	"github.com/bluesky-social/tgmod/automod/policy"
	"github.com/bluesky-social/tgmod/automod/store"
	"github.com/bluesky-social/tgmod/automod/violation"
	"github.com/bluesky-social/tgmod/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	cli "github.com/urfave/cli/v2"
)

// Admin subcommands operate directly on the database. A running bot picks up changes once its policy cache expires.

// Logs go to stderr, leaving stdout for command output.
func adminStore(cctx *cli.Context) (*store.GormStore, error) {
	logger, err := cliutil.SetupSlog(os.Stderr, cctx.String("log-level"), "text")
	if err != nil {
		return nil, err
	}
	return openStore(cctx, logger)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(b))
	return nil
}

func parseTermID(cctx *cli.Context) (uint64, error) {
	if cctx.Args().Len() != 1 {
		return 0, fmt.Errorf("expected a single filter term ID argument")
	}
	id, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid filter term ID: %w", err)
	}
	return id, nil
}

var termFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "category",
		Usage: "profanity, spam, harassment or custom",
	},
	&cli.BoolFlag{
		Name:  "delete",
		Usage: "delete matching messages",
	},
	&cli.BoolFlag{
		Name:  "warn",
		Usage: "warn the author of matching messages",
	},
	&cli.BoolFlag{
		Name:  "auto-mute",
		Usage: "mute once the author reaches --mute-after warnings",
	},
	&cli.IntFlag{
		Name: "mute-after",
	},
	&cli.BoolFlag{
		Name:  "auto-ban",
		Usage: "ban once the author reaches --ban-after warnings",
	},
	&cli.IntFlag{
		Name: "ban-after",
	},
}

// Collects only the term flags which were explicitly set.
func termUpdateFromFlags(cctx *cli.Context) (policy.TermUpdate, error) {
	var u policy.TermUpdate
	if cctx.IsSet("category") {
		c, err := policy.ParseCategory(cctx.String("category"))
		if err != nil {
			return u, err
		}
		u.Category = &c
	}
	setBool := func(name string, dst **bool) {
		if cctx.IsSet(name) {
			v := cctx.Bool(name)
			*dst = &v
		}
	}
	setInt := func(name string, dst **int) {
		if cctx.IsSet(name) {
			v := cctx.Int(name)
			*dst = &v
		}
	}
	setBool("delete", &u.DeleteMessage)
	setBool("warn", &u.WarnUser)
	setBool("auto-mute", &u.AutoMute)
	setInt("mute-after", &u.MuteAfter)
	setBool("auto-ban", &u.AutoBan)
	setInt("ban-after", &u.BanAfter)
	return u, nil
}

var filtersCmd = &cli.Command{
	Name:  "filters",
	Usage: "manage the filter word list",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list all filter terms",
			Action: func(cctx *cli.Context) error {
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				terms, err := st.ListTerms(cctx.Context)
				if err != nil {
					return err
				}
				return printJSON(terms)
			},
		},
		{
			Name:      "add",
			Usage:     "add a filter term",
			ArgsUsage: "<term>",
			Flags:     termFlags,
			Action: func(cctx *cli.Context) error {
				raw := strings.Join(cctx.Args().Slice(), " ")
				if strings.TrimSpace(raw) == "" {
					return fmt.Errorf("a filter term is required")
				}
				term := policy.NewCustomTerm(raw)
				u, err := termUpdateFromFlags(cctx)
				if err != nil {
					return err
				}
				term = u.Apply(term)
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				created, err := st.CreateTerm(cctx.Context, term)
				if err != nil {
					return err
				}
				return printJSON(created)
			},
		},
		{
			Name:      "update",
			Usage:     "change an existing filter term",
			ArgsUsage: "<id>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "term",
					Usage: "replacement word or phrase",
				},
			}, termFlags...),
			Action: func(cctx *cli.Context) error {
				id, err := parseTermID(cctx)
				if err != nil {
					return err
				}
				u, err := termUpdateFromFlags(cctx)
				if err != nil {
					return err
				}
				if cctx.IsSet("term") {
					t := cctx.String("term")
					u.Term = &t
				}
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				updated, err := st.UpdateTerm(cctx.Context, id, u)
				if err != nil {
					return err
				}
				return printJSON(updated)
			},
		},
		{
			Name:      "delete",
			Usage:     "remove a filter term",
			ArgsUsage: "<id>",
			Action: func(cctx *cli.Context) error {
				id, err := parseTermID(cctx)
				if err != nil {
					return err
				}
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				if err := st.DeleteTerm(cctx.Context, id); err != nil {
					return err
				}
				fmt.Printf("deleted filter term %d\n", id)
				return nil
			},
		},
	},
}

var groupFlag = &cli.StringFlag{
	Name:     "group",
	Usage:    "chat ID of the group",
	Required: true,
}

var settingsCmd = &cli.Command{
	Name:  "settings",
	Usage: "view or change a group's moderation policy",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "print the group policy",
			Flags: []cli.Flag{groupFlag},
			Action: func(cctx *cli.Context) error {
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				pol, err := st.GetPolicy(cctx.Context, cctx.String("group"))
				if err != nil {
					return err
				}
				fmt.Println(engine.FormatPolicy(pol))
				return nil
			},
		},
		{
			Name:  "update",
			Usage: "change the group policy; unset flags are left as they are",
			Flags: []cli.Flag{
				groupFlag,
				&cli.StringFlag{
					Name:  "mute-duration",
					Usage: "default mute duration, eg 30m, 24h, 2d, 1w",
				},
				&cli.IntFlag{Name: "warn-threshold"},
				&cli.IntFlag{Name: "mute-threshold"},
				&cli.IntFlag{Name: "ban-threshold"},
				&cli.BoolFlag{Name: "delete-on-match"},
				&cli.BoolFlag{Name: "warn-on-match"},
				&cli.BoolFlag{Name: "notify-admins"},
				&cli.StringFlag{
					Name:  "welcome-message",
					Usage: "message posted when members join; empty to disable",
				},
			},
			Action: func(cctx *cli.Context) error {
				var u policy.PolicyUpdate
				if cctx.IsSet("mute-duration") {
					tok := cctx.String("mute-duration")
					if !duration.IsToken(tok) {
						return fmt.Errorf("invalid mute duration %q (expected eg 30m, 24h, 2d, 1w)", tok)
					}
					m := duration.ParseMinutes(tok)
					u.DefaultMuteMinutes = &m
				}
				for name, dst := range map[string]**int{
					"warn-threshold": &u.WarnThreshold,
					"mute-threshold": &u.MuteThreshold,
					"ban-threshold":  &u.BanThreshold,
				} {
					if cctx.IsSet(name) {
						v := cctx.Int(name)
						*dst = &v
					}
				}
				for name, dst := range map[string]**bool{
					"delete-on-match": &u.DeleteOnFilterMatch,
					"warn-on-match":   &u.WarnOnFilterMatch,
					"notify-admins":   &u.NotifyAdmins,
				} {
					if cctx.IsSet(name) {
						v := cctx.Bool(name)
						*dst = &v
					}
				}
				if cctx.IsSet("welcome-message") {
					w := cctx.String("welcome-message")
					u.WelcomeMessage = &w
				}

				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				pol, err := st.UpdatePolicy(cctx.Context, cctx.String("group"), u)
				if err != nil {
					return err
				}
				fmt.Println(engine.FormatPolicy(pol))
				return nil
			},
		},
	},
}

var logsCmd = &cli.Command{
	Name:  "logs",
	Usage: "list moderation actions, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 50,
		},
		&cli.IntFlag{
			Name: "offset",
		},
		&cli.StringFlag{
			Name:  "user",
			Usage: "only actions against this user ID",
		},
	},
	Action: func(cctx *cli.Context) error {
		st, err := adminStore(cctx)
		if err != nil {
			return err
		}
		var events []auditlog.Event
		if user := cctx.String("user"); user != "" {
			events, err = st.ListEventsByUser(cctx.Context, user, cctx.Int("limit"))
		} else {
			events, err = st.ListEvents(cctx.Context, cctx.Int("limit"), cctx.Int("offset"))
		}
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "summarize moderation actions for today, the past week, and all time",
	Action: func(cctx *cli.Context) error {
		st, err := adminStore(cctx)
		if err != nil {
			return err
		}
		summary, err := auditlog.Summarize(cctx.Context, st, time.Now())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"version": versioninfo.Short(),
			"actions": summary,
		})
	},
}

var userCmd = &cli.Command{
	Name:  "user",
	Usage: "inspect tracked users",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list tracked users ordered by user ID",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Value: 50,
				},
				&cli.IntFlag{
					Name: "offset",
				},
			},
			Action: func(cctx *cli.Context) error {
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				users, err := st.ListUsers(cctx.Context, cctx.Int("limit"), cctx.Int("offset"))
				if err != nil {
					return err
				}
				return printJSON(users)
			},
		},
		{
			Name:      "show",
			Usage:     "print violation state and recent actions for a user",
			ArgsUsage: "<user-id | @username>",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "events",
					Usage: "number of recent actions to include",
					Value: 10,
				},
			},
			Action: func(cctx *cli.Context) error {
				arg := cctx.Args().First()
				if arg == "" {
					return fmt.Errorf("a user ID or @username is required")
				}
				st, err := adminStore(cctx)
				if err != nil {
					return err
				}
				tracker := violation.NewTracker(st, nil)
				var state *violation.UserState
				if strings.HasPrefix(arg, "@") {
					state, err = tracker.FindByUsername(cctx.Context, arg)
				} else {
					state, err = st.GetUser(cctx.Context, arg)
				}
				if err != nil {
					return err
				}
				events, err := st.ListEventsByUser(cctx.Context, state.UserID, cctx.Int("events"))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"user":   state,
					"events": events,
				})
			},
		},
	},
}
