// Command frontline runs the two-sided territory simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/talgya/frontline/internal/api"
	"github.com/talgya/frontline/internal/config"
	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/pathing"
	"github.com/talgya/frontline/internal/persistence"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/units"
	"github.com/talgya/frontline/internal/world"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (.json, .yaml)")
	exportLayout := pflag.String("export-layout", "", "write the battlefield layout to this file and exit")
	fresh := pflag.Bool("fresh", false, "ignore any saved state in the database")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	runID := uuid.NewString()
	slog.Info("frontline starting", "run_id", runID, "planner", cfg.Sim.Planner, "fog_of_war", cfg.Sim.FogOfWar)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Battlefield ───────────────────────────────────────────────────
	var (
		grid      *world.Grid
		reg       *territory.Registry
		roster    *units.Roster
		startTick uint64
	)
	switch {
	case cfg.Grid.LayoutFile != "":
		grid, err = loadLayout(cfg.Grid.LayoutFile)
		if err != nil {
			slog.Error("failed to read layout", "path", cfg.Grid.LayoutFile, "error", err)
			os.Exit(1)
		}
		slog.Info("layout loaded", "path", cfg.Grid.LayoutFile, "size", fmt.Sprintf("%dx%d", grid.Width(), grid.Height()))

	case !*fresh && db.HasWorldState():
		slog.Info("found saved world state, loading...")
		ws, err := db.LoadWorldState()
		if err != nil {
			slog.Error("failed to load world state", "error", err)
			os.Exit(1)
		}
		grid, reg, roster, startTick = ws.Grid, ws.Registry, ws.Roster, ws.Tick

	default:
		slog.Info("generating battlefield...")
		grid = world.Generate(cfg.Grid.GenConfig)
	}

	summary := world.Summarize(grid)
	slog.Info("terrain",
		"land", humanize.Comma(int64(summary.Land)),
		"water", humanize.Comma(int64(summary.Water)),
		"resource_tiles", humanize.Comma(int64(summary.Resources)),
	)

	if *exportLayout != "" {
		if err := saveLayout(*exportLayout, grid); err != nil {
			slog.Error("layout export failed", "error", err)
			os.Exit(1)
		}
		slog.Info("layout exported", "path", *exportLayout)
		return
	}

	fromSave := reg != nil
	if !fromSave {
		reg = territory.NewRegistry(grid)
		roster = units.NewRoster()
		for _, rc := range cfg.Regions {
			side, _ := world.ParseSide(rc.Side)
			anchor, ok := dryAnchor(grid, rc.Anchor)
			if !ok {
				slog.Error("no dry tile for region anchor", "region", rc.ID, "anchor", rc.Anchor)
				os.Exit(1)
			}
			if _, err := reg.Found(world.RegionID(rc.ID), side, rc.Capacity, []world.Pos{anchor}); err != nil {
				slog.Error("failed to found region", "region", rc.ID, "error", err)
				os.Exit(1)
			}
		}
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(grid, reg, roster, engine.Options{
		Planner:  newPlanner(cfg, grid),
		Weights:  cfg.Weights,
		Vision:   cfg.Vision,
		FogOfWar: cfg.Sim.FogOfWar,
	})
	if err != nil {
		slog.Error("failed to build simulation", "error", err)
		os.Exit(1)
	}
	sim.LastTick = startTick

	if !fromSave {
		for _, rc := range cfg.Regions {
			r, _ := reg.Region(world.RegionID(rc.ID))
			weight := rc.UnitWeight
			if weight <= 0 {
				weight = 1
			}
			for i := 0; i < rc.Units; i++ {
				if _, err := sim.Recruit(r.ID, r.Anchor(), weight); err != nil {
					slog.Error("failed to recruit", "region", r.ID, "error", err)
					os.Exit(1)
				}
			}
		}
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}
	if err := db.SaveMeta("run_id", runID); err != nil {
		slog.Warn("failed to record run id", "error", err)
	}

	slog.Info("battlefield ready",
		"regions", len(reg.Regions()),
		"units", roster.Len(),
		"tiles", humanize.Comma(int64(grid.Len())),
		"tick", startTick,
	)

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Interval = cfg.Sim.Interval
	eng.ReportEvery = cfg.Sim.ReportEvery
	eng.SetSpeed(cfg.Sim.Speed)
	eng.SetTick(startTick)

	eng.OnTick = func(tick uint64) error {
		if err := sim.Step(tick); err != nil {
			return err
		}
		if cfg.Sim.Ticks > 0 && tick >= startTick+cfg.Sim.Ticks {
			eng.Stop()
		}
		return nil
	}
	eng.OnReport = func(tick uint64) {
		snap := sim.Snapshot(0)
		for _, r := range snap.Regions {
			slog.Info("region report", "tick", humanize.Comma(int64(tick)), "region", r.ID,
				"tiles", fmt.Sprintf("%d/%d", len(r.Tiles), r.Capacity),
				"frontier", r.Frontier, "interior", r.Interior, "units", len(r.Units))
		}
		slog.Info("totals", "incorporations", humanize.Comma(int64(snap.Stats.Incorporations)),
			"overruns", snap.Stats.Overruns, "unreachable", snap.Stats.Unreachable)
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("periodic save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("api.adminKey not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
		RunID:    runID,
		Limiter:  api.NewRateLimiter(60, time.Minute),
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nfrontline is live: %d regions, %d units on a %dx%d grid.\n",
		len(reg.Regions()), roster.Len(), grid.Width(), grid.Height())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %s\n", humanize.Comma(int64(startTick)))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runErr := eng.Run()

	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	if runErr != nil {
		fmt.Println("Simulation halted:", runErr)
		os.Exit(1)
	}
	fmt.Println("Simulation stopped. Battlefield saved.")
}

func newPlanner(cfg *config.Config, g *world.Grid) units.Planner {
	if cfg.Sim.Planner == config.PlannerDStar {
		p := pathing.NewIncrementalPlanner(g)
		p.StealthPreference = cfg.Sim.Stealth
		p.MaxIterations = cfg.Sim.MaxSearch
		return p
	}
	p := pathing.NewStaticPlanner(g)
	p.Diagonal = cfg.Sim.Diagonal
	p.StealthPriority = cfg.Sim.Stealth
	p.MaxExpansions = cfg.Sim.MaxSearch
	return p
}

// dryAnchor returns p, or the nearest dry in-bounds tile by Manhattan distance
// when p is water or off the grid.
func dryAnchor(g *world.Grid, p world.Pos) (world.Pos, bool) {
	if t, ok := g.Lookup(p); ok && !t.Water {
		return p, true
	}
	best, bestDist, found := world.Pos{}, 0, false
	for _, q := range g.Positions() {
		if g.Tile(q).Water {
			continue
		}
		if d := world.Manhattan(p, q); !found || d < bestDist {
			best, bestDist, found = q, d, true
		}
	}
	return best, found
}

func loadLayout(path string) (*world.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return world.ReadLayout(f)
}

func saveLayout(path string, g *world.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := world.WriteLayout(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
