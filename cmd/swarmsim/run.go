package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/idqam/swarmsim/internal/api"
	"github.com/idqam/swarmsim/internal/config"
	"github.com/idqam/swarmsim/internal/engine"
	"github.com/idqam/swarmsim/internal/world"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(configPath *string) *cobra.Command {
	var numLeaders, numFollowers int
	var seed int64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the simulation kernel and its HTTP/websocket surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernel(cmd.Context(), *configPath, numLeaders, numFollowers, seed)
		},
	}
	cmd.Flags().IntVar(&numLeaders, "leaders", -1, "override swarm.num_leaders")
	cmd.Flags().IntVar(&numFollowers, "followers", -1, "override swarm.num_followers")
	cmd.Flags().Int64Var(&seed, "seed", -1, "override sim.seed")

	return cmd
}

func runKernel(ctx context.Context, configPath string, leaders, followers int, seed int64) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if leaders >= 0 {
		cfg.Swarm.NumLeaders = leaders
	}
	if followers >= 0 {
		cfg.Swarm.NumFollowers = followers
	}
	if seed >= 0 {
		cfg.Sim.Seed = seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	eng := engine.New(cfg, logger)
	if err := seedSwarm(eng, cfg); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	server := api.NewServer(eng, logger)
	eng.OnSnapshot(server.Hub().Publish)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	restSrv := &http.Server{Addr: cfg.API.RESTAddr, Handler: server.Router()}
	streamMux := http.NewServeMux()
	streamMux.Handle("/ws", server.Hub())
	streamSrv := &http.Server{Addr: cfg.API.StreamAddr, Handler: streamMux}

	group.Go(func() error {
		logger.Info().Str("addr", cfg.API.RESTAddr).Msg("REST listener starting")
		if err := restSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("rest listener: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Info().Str("addr", cfg.API.StreamAddr).Msg("stream listener starting")
		if err := streamSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("stream listener: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		eng.Start()
		var fatalErr error
		select {
		case <-groupCtx.Done():
		case fatalErr = <-eng.Fatal():
		}
		eng.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = restSrv.Shutdown(shutdownCtx)
		_ = streamSrv.Shutdown(shutdownCtx)
		return fatalErr
	})

	return group.Wait()
}

// seedSwarm registers cfg.Swarm.NumLeaders leaders in a row spaced 10 m
// apart along +x from the fire grid's center and NumFollowers followers
// in a column spaced 10 m apart along +y from it, with ids starting at 1,
// each follower assigned to a leader round-robin, per spec.md §6 swarm
// defaults.
func seedSwarm(eng *engine.Engine, cfg config.Config) error {
	centerX := float64(cfg.Fire.Width) * cfg.Fire.CellSizeM / 2
	centerY := float64(cfg.Fire.Height) * cfg.Fire.CellSizeM / 2

	leaderIDs := make([]int, 0, cfg.Swarm.NumLeaders)
	id := 1
	for i := 0; i < cfg.Swarm.NumLeaders; i++ {
		pose := world.Vector3{X: centerX + float64(i)*10, Y: centerY, Z: 0}
		if err := eng.RegisterDrone(id, pose, world.RoleLeader, 20, cfg.Sim.Seed); err != nil {
			return err
		}
		leaderIDs = append(leaderIDs, id)
		id++
	}
	for i := 0; i < cfg.Swarm.NumFollowers; i++ {
		pose := world.Vector3{X: centerX, Y: centerY + float64(i)*10, Z: 0}
		if err := eng.RegisterDrone(id, pose, world.RoleFollower, 20, cfg.Sim.Seed); err != nil {
			return err
		}
		if len(leaderIDs) > 0 {
			if err := eng.AssignFollowerLeader(id, leaderIDs[i%len(leaderIDs)]); err != nil {
				return err
			}
		}
		id++
	}
	return nil
}
