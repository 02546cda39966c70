package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/loomworks/weft/pkg/config"
	"github.com/loomworks/weft/pkg/executor"
	"github.com/loomworks/weft/pkg/log"
	"github.com/loomworks/weft/pkg/registry"
	"github.com/loomworks/weft/pkg/runtime"
)

func main() {
	root := &cli.Command{
		Name:                  "weft",
		EnableShellCompletion: true,
		Usage:                 "JCWF workflow orchestration engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			validateCommand(),
			listCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the engine configuration JSON",
		Required: true,
		Sources:  cli.EnvVars("WEFT_CONFIG"),
	}
}

func newRuntime(ctx context.Context, command *cli.Command) (*runtime.Runtime, error) {
	log.Setup(command.String("log-level"))

	engineID := "engine-" + uuid.New().String()[:8]
	logger := log.WithModule("weft").With("engine_id", engineID)

	cfg, err := config.Load(command.String("config"), logger)
	if err != nil {
		return nil, err
	}

	opts := []runtime.Option{}
	if assistantURL := command.String("assistant-url"); assistantURL != "" {
		opts = append(opts, runtime.WithAssistantClient(executor.NewRestyAssistantClient(assistantURL)))
	}

	rt, err := runtime.NewRuntime(logger, cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := rt.Load(); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Initialized weft engine")

	return rt, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Bind triggers and run the engine loop",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "assistant-url",
				Usage:   "Base URL of the assistant backend for ai_call tasks",
				Sources: cli.EnvVars("WEFT_ASSISTANT_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			signals := make(chan os.Signal, 2)
			signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-signals
				cancel()

				// A second interrupt is a hard exit.
				<-signals
				os.Exit(130)
			}()

			return rt.Run(runCtx)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one workflow once and exit",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Explicit run id (defaults to <workflow>_<unix-seconds>)",
			},
			&cli.StringFlag{
				Name:    "assistant-url",
				Usage:   "Base URL of the assistant backend for ai_call tasks",
				Sources: cli.EnvVars("WEFT_ASSISTANT_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("missing workflow id argument")
			}

			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}

			return rt.Orchestrator().RunOnceWithID(ctx, workflowID, command.String("run-id"))
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Load a workflow directory and report validation results",
		ArgsUsage: "<dir>",
		Action: func(ctx context.Context, command *cli.Command) error {
			dir := command.Args().First()
			if dir == "" {
				return fmt.Errorf("missing workflow directory argument")
			}

			log.Setup(command.String("log-level"))
			logger := log.WithModule("weft")

			reg := registry.NewRegistry(logger)
			if err := reg.LoadDirectory(dir); err != nil {
				return err
			}

			if !reg.ValidateAll() {
				for _, id := range reg.WorkflowIDs() {
					for _, err := range reg.ValidationErrors(id) {
						fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
					}
				}

				return fmt.Errorf("validation failed")
			}

			fmt.Printf("%d workflows valid\n", len(reg.WorkflowIDs()))

			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List workflow ids in the configured workflows folder",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			rt, err := newRuntime(ctx, command)
			if err != nil {
				return err
			}

			for _, id := range rt.Registry().WorkflowIDs() {
				fmt.Println(id)
			}

			return nil
		},
	}
}
