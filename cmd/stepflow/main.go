package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/checkpoint/redisstore"
	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/llm/provider"
	"github.com/tailored-agentic-units/stepflow/memory"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/server"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

const (
	flowCounter    = "counter"
	flowDelegation = "delegation"
	flowContent    = "content"
	flowMultiAgent = "multiAgent"
	flowResearch   = "research"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to a JSON or YAML config file")
		flow       = flag.String("flow", flowCounter, "Flow to run interactively: counter, delegation, content, multiAgent or research")
		serve      = flag.String("serve", "", "Serve every flow over Connect RPC on this address instead")
		resume     = flag.String("resume", "", "Resume this run of -flow from its checkpoint and exit")
		verbose    = flag.Bool("verbose", false, "Log every step and tool call to stderr")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Redis.Address != "" {
		store, client, err := redisstore.Dial(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect checkpoint store: %v", err)
		}
		defer client.Close()
		checkpoint.Register("redis", store)
	}

	graphOpts, err := workflow.ConfigOptions(cfg.Graph)
	if err != nil {
		log.Fatalf("Failed to configure graphs: %v", err)
	}

	observer, err := observability.GetObserver(cfg.Graph.Observer)
	if err != nil {
		log.Fatalf("Failed to resolve observer: %v", err)
	}

	app := &app{
		cfg:       cfg,
		graphOpts: graphOpts,
		observer:  observer,
		memory:    memory.NewStore(&cfg.Memory),
		logger:    logger,
	}

	if *serve != "" {
		if err := app.serve(ctx, *serve); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	}

	if *resume != "" {
		if err := app.resume(ctx, *flow, *resume, os.Stdout); err != nil {
			log.Fatalf("Resume of %s run %s failed: %v", *flow, *resume, err)
		}
		return
	}

	if err := app.interactive(ctx, *flow, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Flow %s failed: %v", *flow, err)
	}
}

func loadConfig(filename string) (*config.Config, error) {
	if filename == "" {
		cfg := config.DefaultConfig()
		cfg.ApplyEnv(os.Getenv)
		return &cfg, nil
	}
	return config.Load(filename)
}

type app struct {
	cfg       *config.Config
	graphOpts []workflow.Option
	observer  observability.Observer
	memory    memory.Store
	logger    *slog.Logger

	idx     *retrieval.Index
	indexed bool
}

func (a *app) model() (llm.Model, error) {
	return provider.New(a.cfg.Provider)
}

// runners builds every flow the configuration allows. Without a usable
// model only the counter flow is available.
func (a *app) runners(ctx context.Context) ([]workflow.Runner, error) {
	counter, err := flows.Counter(nil, a.graphOpts...)
	if err != nil {
		return nil, err
	}
	runners := []workflow.Runner{counter}

	model, err := a.model()
	if err != nil {
		a.logger.Warn("language model unavailable, serving counter only", "error", err)
		return runners, nil
	}

	delegation, err := a.delegation(ctx, model)
	if err != nil {
		return nil, err
	}
	content, err := a.content(model)
	if err != nil {
		return nil, err
	}
	multiAgent, err := a.multiAgent(ctx, model)
	if err != nil {
		return nil, err
	}
	runners = append(runners, delegation, content, multiAgent)

	research, err := a.research(ctx, model)
	if errors.Is(err, errNoDocuments) {
		a.logger.Warn("memory holds no documents, not serving research")
		return runners, nil
	}
	if err != nil {
		return nil, err
	}
	return append(runners, research), nil
}

func (a *app) delegation(ctx context.Context, model llm.Model) (*workflow.Graph[flows.DelegationState], error) {
	registry, err := a.delegationTools(ctx, model)
	if err != nil {
		return nil, err
	}
	return flows.Delegation(model, flows.DelegationConfig{
		Threshold: a.cfg.Threshold,
		Agent:     a.cfg.Agent,
		Tools:     registry,
		Memory:    a.memory,
		Observer:  a.observer,
	}, a.graphOpts...)
}

func (a *app) content(model llm.Model) (*workflow.Graph[flows.ContentState], error) {
	return flows.Content(model, flows.ContentConfig{
		Agent:    a.cfg.Agent,
		Tools:    contentTools(model, a.observer),
		Observer: a.observer,
	}, a.graphOpts...)
}

func (a *app) multiAgent(ctx context.Context, model llm.Model) (*workflow.Graph[flows.MultiAgentState], error) {
	research, weather, err := a.teamTools(ctx)
	if err != nil {
		return nil, err
	}
	return flows.MultiAgent(model, flows.MultiAgentConfig{
		Members:  flows.DefaultTeam(research, weather),
		Agent:    a.cfg.Agent,
		Observer: a.observer,
	}, a.graphOpts...)
}

var errNoDocuments = errors.New("the research flow searches memory documents; memory holds none")

func (a *app) research(ctx context.Context, model llm.Model) (*workflow.Graph[flows.ResearchState], error) {
	index, err := a.index(ctx)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, errNoDocuments
	}
	return flows.Research(model, flows.ResearchConfig{
		Searcher: index,
		Results:  searchResults,
	}, a.graphOpts...)
}

// resume continues a checkpointed run of flow and prints its final state.
// Only a store that outlives the process, such as redis, has runs to resume.
func (a *app) resume(ctx context.Context, flow, runID string, out io.Writer) error {
	runners, err := a.runners(ctx)
	if err != nil {
		return err
	}

	for _, r := range runners {
		if r.Name() != flow {
			continue
		}
		resumer, ok := r.(workflow.Resumer)
		if !ok {
			return fmt.Errorf("flow %s cannot resume runs", flow)
		}

		state, trace, err := resumer.ResumeJSON(ctx, runID)
		if err != nil {
			printFailedTrace(out, err)
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, state, "", "  "); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", pretty.Bytes())
		printTrace(out, trace)
		return nil
	}
	return fmt.Errorf("unknown flow %q", flow)
}

func (a *app) serve(ctx context.Context, addr string) error {
	runners, err := a.runners(ctx)
	if err != nil {
		return err
	}

	srv := server.New(
		server.WithObserver(a.observer),
		server.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	)
	for _, r := range runners {
		if err := srv.Register(r); err != nil {
			return err
		}
	}

	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.WithoutCancel(ctx))
	}()

	a.logger.Info("serving workflows", "address", addr, "workflows", srv.Workflows())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}
