package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/trafficsim/internal/config"
	"github.com/banshee-data/trafficsim/internal/monitor"
	"github.com/banshee-data/trafficsim/internal/sim"
	"github.com/banshee-data/trafficsim/internal/store"
	"github.com/banshee-data/trafficsim/internal/track"
	"github.com/banshee-data/trafficsim/internal/traffic"
	"github.com/banshee-data/trafficsim/internal/version"
)

const defaultPlayerTopSpeed = 20.0

type options struct {
	trackFile  string
	configFile string
	agents     int
	player     bool
	dbPath     string
	listen     string
	ticks      int
	plotFile   string
	version    bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("trafficsim", flag.ContinueOnError)
	fs.StringVar(&o.trackFile, "track", "", "Track JSON file (default: built-in oval)")
	fs.StringVar(&o.configFile, "config", "", "Tuning JSON file (default: built-in defaults)")
	fs.IntVar(&o.agents, "agents", 6, "Number of AI agents")
	fs.BoolVar(&o.player, "player", false, "Add an input-driven agent controlled via POST /api/input")
	fs.StringVar(&o.dbPath, "db", "trafficsim.db", "SQLite run database (empty disables recording)")
	fs.StringVar(&o.listen, "listen", ":8080", "Monitor listen address (empty disables the monitor)")
	fs.IntVar(&o.ticks, "ticks", 0, "Run this many ticks as fast as possible and exit (0 runs in real time until interrupted)")
	fs.StringVar(&o.plotFile, "plot", "", "Write a lane plot to this file on exit (.png, .svg or .pdf)")
	fs.BoolVar(&o.version, "version", false, "Print version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.version {
		return o, nil
	}
	if o.agents < 0 {
		return options{}, fmt.Errorf("agents must be non-negative, got %d", o.agents)
	}
	if o.ticks < 0 {
		return options{}, fmt.Errorf("ticks must be non-negative, got %d", o.ticks)
	}
	if o.ticks == 0 && o.listen == "" {
		return options{}, errors.New("real-time mode needs a listen address; use -ticks for headless runs")
	}
	return o, nil
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func loadTrack(path string, cfg *config.TuningConfig) (*track.Path, error) {
	opts := track.CurveOptionsFromTuning(cfg)
	if path == "" {
		return track.Oval("oval", track.DefaultOvalSpec(), track.DefaultLanes(), opts)
	}
	return track.LoadFile(path, opts)
}

// buildWorld creates the world and its agents. The returned input is non-nil
// when a player agent was added.
func buildWorld(o options, cfg *config.TuningConfig, path *track.Path, rec sim.Recorder) (*sim.World, *traffic.ManualInput, error) {
	wopts, err := sim.OptionsFromTuning(cfg)
	if err != nil {
		return nil, nil, err
	}
	wopts.Recorder = rec
	w := sim.NewWorld(path, wopts)

	specs, err := sim.Spawn(path, o.agents, cfg.GetAgentTopSpeeds())
	if err != nil {
		return nil, nil, err
	}
	for _, spec := range specs {
		if _, err := w.AddAgent(spec); err != nil {
			return nil, nil, err
		}
	}

	var input *traffic.ManualInput
	if o.player {
		input = &traffic.ManualInput{}
		top := defaultPlayerTopSpeed
		if speeds := cfg.GetAgentTopSpeeds(); len(speeds) > 0 {
			top = speeds[0]
		}
		segs, err := path.Segments(0)
		if err != nil {
			return nil, nil, err
		}
		if _, err := w.AddAgent(sim.AgentSpec{
			ID:            "player",
			TopSpeed:      top,
			Lane:          0,
			Segment:       len(segs) / 4,
			Input:         input,
			MaxSteerAngle: 30,
		}); err != nil {
			return nil, nil, err
		}
	}
	return w, input, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
	if o.version {
		fmt.Println(version.Current())
		return
	}
	log.Printf("%s starting", version.Current())

	cfg, err := loadConfig(o.configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	path, err := loadTrack(o.trackFile, cfg)
	if err != nil {
		log.Fatalf("failed to load track: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db  *store.Store
		run *store.Run
		rec sim.Recorder
	)
	if o.dbPath != "" {
		db, err = store.Open(o.dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		run, err = db.StartRun(ctx, path.Name(), o.agents, cfg)
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		rec = db.Recorder(run.ID)
		log.Printf("recording run %s to %s", run.ID, o.dbPath)
	}

	world, input, err := buildWorld(o, cfg, path, rec)
	if err != nil {
		log.Fatalf("failed to build world: %v", err)
	}
	loop := sim.NewLoop(world, nil)

	if o.ticks > 0 {
		start := time.Now()
		if err := loop.RunTicks(ctx, o.ticks); err != nil {
			log.Printf("run interrupted: %v", err)
		}
		log.Printf("ran %d ticks in %s", world.Tick(), time.Since(start).Round(time.Millisecond))
	} else {
		serve(ctx, o, world, db, input, loop)
	}

	if db != nil {
		// ctx may already be cancelled.
		if err := db.FinishRun(context.Background(), run.ID, world.Tick()); err != nil {
			log.Printf("failed to finish run: %v", err)
		}
	}
	if o.plotFile != "" {
		if err := monitor.SaveLanePlot(world, o.plotFile); err != nil {
			log.Printf("failed to write plot: %v", err)
		} else {
			log.Printf("wrote lane plot to %s", o.plotFile)
		}
	}
	log.Printf("Graceful shutdown complete")
}

// serve runs the loop and the monitor until ctx is done.
func serve(ctx context.Context, o options, world *sim.World, db *store.Store, input *traffic.ManualInput, loop *sim.Loop) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			log.Printf("loop error: %v", err)
		}
		log.Print("loop routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		var mopts []monitor.Option
		if db != nil {
			if err := db.AttachAdminRoutes(mux); err != nil {
				log.Printf("admin routes disabled: %v", err)
			}
			mopts = append(mopts, monitor.WithRunStore(db))
		}
		if input != nil {
			mopts = append(mopts, monitor.WithInput(input))
		}
		monitor.NewServer(world, mopts...).RegisterRoutes(mux)

		server := &http.Server{
			Addr:              o.listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("monitor listening on %s", o.listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
}
