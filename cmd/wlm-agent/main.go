package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kardianos/service"
	"wlm-agent/internal/agent"
)

var (
	version = "1.0.0" // Set via -ldflags during build
)

// program implements the service.Interface
type program struct {
	agent      *agent.Agent
	configPath string
	logger     service.Logger
}

func main() {
	var configPath string
	var svcFlag string
	var once bool
	var showVersion bool

	flag.StringVar(&configPath, "config", "/etc/wlm-agent/config.yaml", "Path to configuration file")
	flag.StringVar(&svcFlag, "service", "", "Control the system service: install, uninstall, start, stop, restart")
	flag.BoolVar(&once, "once", false, "Print a single heartbeat record as JSON and exit")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if once {
		if err := agent.PrintHeartbeat(configPath, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	svcConfig := &service.Config{
		Name:        "wlm-agent",
		DisplayName: "WLM Heartbeat Agent",
		Description: "Publishes WLM heartbeat records to NATS",
		Arguments:   []string{"-config", configPath},
	}

	prg := &program{
		configPath: configPath,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 5)
	logger, err := s.Logger(errs)
	if err != nil {
		log.Fatal(err)
	}
	prg.logger = logger

	if len(svcFlag) != 0 {
		err := service.Control(s, svcFlag)
		if err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			log.Fatal(err)
		}
		return
	}

	if err := s.Run(); err != nil {
		logger.Error(err)
	}
}

// Start implements service.Interface
func (p *program) Start(s service.Service) error {
	p.logger.Infof("Starting wlm-agent version %s", version)

	ag, err := agent.New(p.configPath, version)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	p.agent = ag

	go func() {
		if err := p.agent.Run(); err != nil {
			p.logger.Errorf("Agent error: %v", err)
		}
	}()

	return nil
}

// Stop implements service.Interface
func (p *program) Stop(s service.Service) error {
	p.logger.Info("Stopping wlm-agent")

	if p.agent != nil {
		if err := p.agent.Shutdown(); err != nil {
			p.logger.Errorf("Error during shutdown: %v", err)
			return err
		}
	}

	return nil
}
