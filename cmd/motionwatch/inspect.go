package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/nvr-ai/go-motion/config"
	"github.com/nvr-ai/go-motion/sink"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func configDefaultsAction(c *cli.Context) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return errors.Wrap(err, "failed to encode defaults")
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func configValidateAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("validate requires a FILE argument")
	}
	if _, err := config.Load(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s: ok\n", path)
	return nil
}

func eventsAction(c *cli.Context) error {
	path := c.String(flagDatabase)
	if path == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		path = cfg.Output.Database
	}
	if path == "" {
		return errors.New("no event database: set output.database or --db")
	}

	store, err := sink.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if age := c.Duration(flagPrune); age > 0 {
		n, err := store.Prune(c.Context, time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "pruned %d events\n", n)
	}

	events, err := store.Events(c.Context, time.Now().Add(-c.Duration(flagSince)), c.Int(flagLimit))
	if err != nil {
		return err
	}

	w := c.App.Writer
	for _, e := range events {
		kind := "motion"
		if e.Manual {
			kind = "manual"
		}
		regions := make([]string, 0, len(e.Regions))
		for _, r := range e.Regions {
			regions = append(regions, r.String())
		}
		fmt.Fprintf(w, "%s  %-6s frame=%-6d cut=%.1f  %s\n",
			e.CapturedAt.Format(time.DateTime), kind, e.FrameIndex, e.CutLevel, strings.Join(regions, " "))
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
	}
	return nil
}
