package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"bscnat/audit"
	"bscnat/config"
	"bscnat/mgcp"
	"bscnat/nat"
	"bscnat/sccp"
	"bscnat/statusapi"
	"bscnat/transport"
	"bscnat/trunk"
)

// Version info - increment based on change magnitude:
// Major (x.0.0): Breaking changes, major rewrites
// Minor (0.y.0): New features, significant enhancements
// Patch (0.0.z): Bug fixes, minor improvements
var Version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Infof("Starting BSC NAT v%s", Version)
	log.Infof("  Call agent: %s (mgcp_ipa=%v)", cfg.CallAgentAddr, cfg.MGCPIPA)
	log.Infof("  Source addr: %s:%d", cfg.SourceAddr, cfg.SourcePort)
	log.Infof("  BSC listen: %s", cfg.BSCListenAddr)
	log.Infof("  Max endpoints: %d", cfg.MaxEndpoints)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
	}()

	store := config.NewStore(cfg)

	tr := trunk.New(cfg.MaxEndpoints).WithRTPBase(cfg.RTPBaseNetPort, cfg.RTPBaseBtsPort)
	sessions := sccp.NewTable()

	bscs := make(map[string]*trunk.BSC, len(cfg.BSCs))
	for _, entry := range cfg.BSCs {
		bsc := trunk.NewBSC(entry.Name, tr, cfg.MaxEndpoints)
		bsc.ExpectedAddr = entry.ListenAddr
		bscs[entry.Name] = bsc
	}

	var auditLog *audit.Writer
	if cfg.AuditLogPath != "" {
		auditLog = audit.NewWriter(cfg.AuditLogPath, cfg.AuditRetention)
		defer auditLog.Close()
	}

	registry := transport.NewRegistry(bscs, nil, nil)

	agentLocal := fmt.Sprintf("%s:%d", cfg.SourceAddr, cfg.SourcePort)
	agentLink, err := transport.Dial(agentLocal, cfg.CallAgentAddr, nil)
	if err != nil {
		log.Fatalf("Failed to connect to call agent: %v", err)
	}
	defer agentLink.Close()

	core := nat.New(tr, sessions, registry, agentLink, cfg.SourceAddr)
	core.AuditLog = auditLog
	registry.SetReceivers(core, core)
	agentLink.SetReceiver(&agentDispatcher{core: core})

	if auditLog != nil {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					auditLog.Cleanup()
				}
			}
		}()
	}

	go watchConfig(ctx, store, *configPath, tr, bscs, registry)

	go func() {
		if err := registry.Listen(cfg.BSCListenAddr); err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Fatalf("BSC listener error: %v", err)
			}
		}
	}()
	defer registry.Close()

	if cfg.StatusAddr != "" {
		status := statusapi.New(cfg.StatusAddr, tr, bscs, sessions)
		go func() {
			if err := status.ListenAndServe(); err != nil {
				log.Errorf("Status API error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutdown complete")
}

// agentDispatcher turns inbound Call-Agent datagrams into parsed
// CRCX/MDCX/DLCX policy decisions (spec §4.2). It exists because
// transport.AgentLink only knows how to hand back raw bytes, while the
// MGCP verb parser and the core live in separate packages.
type agentDispatcher struct {
	core *nat.Core
}

func (d *agentDispatcher) OnAgentMessage(raw []byte) {
	verb, transactionID, endpoint, ok := mgcp.ParseRequest(raw)
	if !ok {
		log.Errorf("main: unparseable message from call agent: %q", raw)
		return
	}
	d.core.OnVerb(endpoint, verb, transactionID, raw)
}

// watchConfig hot-reloads the BSC allowlist on file change (spec §6.E),
// the one config component the teacher's fsnotify-based reload pattern
// maps onto directly — mgcp_ipa, max_endpoints, and the socket addresses
// all require a restart since the trunk and sockets are already sized
// and bound around them.
func watchConfig(ctx context.Context, store *config.Store, path string, tr *trunk.Trunk, bscs map[string]*trunk.BSC, registry *transport.Registry) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("main: config watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		log.Errorf("main: failed to watch %s: %v", path, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			entries, err := store.ReloadBSCs(path)
			if err != nil {
				log.Errorf("main: config reload failed: %v", err)
				continue
			}

			fresh := make(map[string]*trunk.BSC, len(entries))
			for _, entry := range entries {
				bsc, ok := bscs[entry.Name]
				if !ok {
					bsc = trunk.NewBSC(entry.Name, tr, store.Get().MaxEndpoints)
				}
				bsc.ExpectedAddr = entry.ListenAddr
				fresh[entry.Name] = bsc
			}
			bscs = fresh
			registry.UpdateBSCs(bscs)
			log.Infof("main: reloaded bsc allowlist (%d entries)", len(bscs))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("main: config watcher error: %v", err)
		}
	}
}
