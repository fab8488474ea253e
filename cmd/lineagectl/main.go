// lineagectl is the operator tool for reconstructing resubmission lineage of
// legacy audits. It is never reachable from end-user request paths, and it
// never auto-commits: `propose` emits clusters for human review, `commit`
// applies only what a human approved.
//
// Run one invocation at a time per audit year. A partial commit is safe to
// re-run: records that already carry linkage metadata drop out of the next
// candidate set.
//
// Usage:
//
//	DATABASE_URL=... lineagectl propose --year 2023 --out proposals.json
//	DATABASE_URL=... lineagectl commit --year 2023 --proposals proposals.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	pg "github.com/GSA-TTS/FAC-sub003/internal/adapters/postgres"
	"github.com/GSA-TTS/FAC-sub003/internal/logging"
	"github.com/GSA-TTS/FAC-sub003/internal/services/lineage"
	recsvc "github.com/GSA-TTS/FAC-sub003/internal/services/records"
)

func main() {
	app := &cli.App{
		Name:  "lineagectl",
		Usage: "propose and commit resubmission linkage for legacy audits",
		Commands: []*cli.Command{
			{
				Name:  "propose",
				Usage: "cluster legacy records for one audit year and emit proposals for review",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "year", Required: true, Usage: "audit year to cluster"},
					&cli.StringFlag{Name: "out", Usage: "write proposals JSON to this file instead of stdout"},
				},
				Action: runPropose,
			},
			{
				Name:  "commit",
				Usage: "apply human-approved cluster proposals",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "year", Required: true, Usage: "audit year the proposals were generated for"},
					&cli.StringFlag{Name: "proposals", Required: true, Usage: "file holding the approved proposals JSON"},
				},
				Action: runCommit,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newEngine(ctx context.Context) (*lineage.Engine, func(), error) {
	_ = godotenv.Load()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := pg.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(os.Getenv("APP_ENV"))
	engine := lineage.NewEngine(db, db, recsvc.New(db), log)
	return engine, db.Close, nil
}

func runPropose(c *cli.Context) error {
	ctx := c.Context
	engine, closeDB, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	proposals, err := engine.Propose(ctx, c.Int("year"))
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(proposals, "", "  ")
	if err != nil {
		return err
	}
	if path := c.String("out"); path != "" {
		return os.WriteFile(path, append(out, '\n'), 0o644)
	}
	fmt.Println(string(out))
	return nil
}

func runCommit(c *cli.Context) error {
	ctx := c.Context
	engine, closeDB, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	raw, err := os.ReadFile(c.String("proposals"))
	if err != nil {
		return err
	}
	var proposals []lineage.ClusterProposal
	if err := json.Unmarshal(raw, &proposals); err != nil {
		return err
	}
	res, err := engine.Commit(ctx, c.Int("year"), proposals)
	if err != nil {
		return err
	}
	fmt.Printf("linked %d records, skipped %d clusters\n", res.Linked, res.SkippedClusters)
	return nil
}
